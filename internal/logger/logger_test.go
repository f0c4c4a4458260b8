package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warning", log.WarnLevel},
		{" Warn ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetLevelIgnoresEmpty(t *testing.T) {
	prev := Logger.GetLevel()
	defer Logger.SetLevel(prev)

	SetLevel("error")
	assert.Equal(t, log.ErrorLevel, Logger.GetLevel())

	SetLevel("  ")
	assert.Equal(t, log.ErrorLevel, Logger.GetLevel())
}

func TestWithPrefixFollowsLevel(t *testing.T) {
	prev := Logger.GetLevel()
	defer SetLevel(prev.String())

	child := WithPrefix("test")
	SetLevel("debug")
	assert.Equal(t, log.DebugLevel, child.GetLevel())
	SetLevel("error")
	assert.Equal(t, log.ErrorLevel, child.GetLevel())
}

func TestSetOutputReachesChildren(t *testing.T) {
	defer SetOutput(os.Stderr)

	var buf bytes.Buffer
	child := WithPrefix("output")
	SetOutput(&buf)

	child.Error("child message")
	Error("root message")
	assert.Contains(t, buf.String(), "child message")
	assert.Contains(t, buf.String(), "root message")
}
