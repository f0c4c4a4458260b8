package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

var (
	childMu  sync.Mutex
	children []*log.Logger
)

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})

	// LOG_LEVEL wins until the config file says otherwise
	Logger.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(name string) log.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel overrides the level picked from LOG_LEVEL. An empty name is ignored.
func SetLevel(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	level := ParseLevel(name)
	Logger.SetLevel(level)

	// children copy the level at creation time
	childMu.Lock()
	defer childMu.Unlock()
	for _, c := range children {
		c.SetLevel(level)
	}
}

// SetOutput redirects the logger and its children to w.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)

	childMu.Lock()
	defer childMu.Unlock()
	for _, c := range children {
		c.SetOutput(w)
	}
}

// WithPrefix returns a child logger tagged with the component name.
// Its level follows later SetLevel calls.
func WithPrefix(component string) *log.Logger {
	child := Logger.WithPrefix(component)
	childMu.Lock()
	children = append(children, child)
	childMu.Unlock()
	return child
}

// Convenience functions for common operations
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

func Fatal(msg interface{}, keyvals ...interface{}) {
	Logger.Fatal(msg, keyvals...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Logger.Fatalf(format, args...)
}
