package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so services share one structured JSON format.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger on stdout with the specified level.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a JSON logger that writes to w.
func NewWithWriter(level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel maps a config string to a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		l = Default()
	}
	return &Logger{Logger: l.Logger.With("component", name)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}
