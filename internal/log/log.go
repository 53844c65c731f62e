package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger is a small key/value logger handed to every component that needs
// one. The zero value logs through slog.Default.
type Logger struct {
	s *slog.Logger
}

// Options controls where and how log lines are written.
type Options struct {
	Level  Level
	Format string // "text" (default) or "json"
	Output io.Writer
}

// New builds a Logger writing to opts.Output (stderr when nil).
func New(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	return Logger{s: slog.New(h)}
}

// Discard returns a Logger that drops everything. Used by tests.
func Discard() Logger {
	return Logger{s: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a Logger that always appends the given key/value pairs.
func (l Logger) With(kv ...any) Logger {
	return Logger{s: l.slog().With(kv...)}
}

func (l Logger) Debug(msg string, kv ...any) {
	l.slog().Debug(msg, kv...)
}

func (l Logger) Info(msg string, kv ...any) {
	l.slog().Info(msg, kv...)
}

func (l Logger) Warn(msg string, kv ...any) {
	l.slog().Warn(msg, kv...)
}

func (l Logger) Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	l.slog().Error(msg, extended...)
}

func (l Logger) slog() *slog.Logger {
	if l.s == nil {
		return slog.Default()
	}
	return l.s
}

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func parseLevel(l Level) slog.Level {
	switch ParseLevel(string(l)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
