package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the key/value logging interface used across the service
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// NewLogger creates a logger writing to stdout with the given level and format ("json" or "text")
func NewLogger(level, format string) Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, level, format string) Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &slogLogger{l: slog.New(handler)}
}

// NewNop returns a logger that discards everything, handy in tests
func NewNop() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *slogLogger) Debug(msg string, keyvals ...interface{}) {
	s.l.Debug(msg, keyvals...)
}

func (s *slogLogger) Info(msg string, keyvals ...interface{}) {
	s.l.Info(msg, keyvals...)
}

func (s *slogLogger) Warn(msg string, keyvals ...interface{}) {
	s.l.Warn(msg, keyvals...)
}

func (s *slogLogger) Error(msg string, keyvals ...interface{}) {
	s.l.Error(msg, keyvals...)
}

func (s *slogLogger) With(keyvals ...interface{}) Logger {
	return &slogLogger{l: s.l.With(keyvals...)}
}
