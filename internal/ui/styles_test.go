package ui

import (
	"strings"
	"testing"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/stretchr/testify/assert"
)

func TestFormatControl(t *testing.T) {
	tests := []struct {
		name string
		key  string
		desc string
	}{
		{
			name: "basic control",
			key:  "q",
			desc: "Quit",
		},
		{
			name: "longer key",
			key:  "ctrl+c",
			desc: "Quit monitor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatControl(tt.key, tt.desc)
			if !strings.Contains(got, tt.key) {
				t.Errorf("FormatControl() missing key %q", tt.key)
			}
			if !strings.Contains(got, tt.desc) {
				t.Errorf("FormatControl() missing description %q", tt.desc)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name   string
		active bool
		status string
		want   string
	}{
		{name: "focused", active: true, status: "surface 3", want: "●"},
		{name: "no focus", active: false, status: "no focus", want: "○"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatStatus(tt.active, tt.status)
			assert.Contains(t, got, tt.status)
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestModifierNames(t *testing.T) {
	tests := []struct {
		name string
		mask uint32
		want []string
	}{
		{name: "none", mask: 0, want: nil},
		{name: "shift", mask: 1, want: []string{"Shift"}},
		{name: "ctrl alt", mask: 4 | 8, want: []string{"Control", "Mod1"}},
		{name: "super and lock", mask: 2 | 64, want: []string{"Lock", "Mod4"}},
		{name: "virtual bit", mask: 1 << 9, want: []string{"Mod#9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModifierNames(tt.mask))
		})
	}
}

func TestFormatModifiers(t *testing.T) {
	got := FormatModifiers(keymap.Modifiers{Depressed: 1 | 4, Locked: 2, Group: 1})
	assert.Contains(t, got, "Shift+Control")
	assert.Contains(t, got, "Lock")
	assert.Contains(t, got, "group 1")
}

func TestFormatKeys(t *testing.T) {
	assert.Contains(t, FormatKeys(nil, nil), "none")

	got := FormatKeys([]uint32{30, 99}, func(k uint32) string {
		if k == 30 {
			return "A"
		}
		return ""
	})
	assert.Contains(t, got, "A")
	assert.Contains(t, got, "99")
}

func TestFormatSetupResult(t *testing.T) {
	ok := FormatSetupResult(true, "device", "/dev/input/event3")
	assert.Contains(t, ok, IconSuccess)
	assert.Contains(t, ok, "/dev/input/event3")

	failed := FormatSetupResult(false, "device", "")
	assert.Contains(t, failed, IconError)
	assert.NotContains(t, failed, " - ")
}

func TestCreateSeparator(t *testing.T) {
	assert.Contains(t, CreateSeparator(0, ""), strings.Repeat("─", 50))
	assert.Contains(t, CreateSeparator(3, "="), "===")
}
