package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds the process logger: JSON records on w at the given level, with
// correlation IDs taken from each call's context.
func New(w io.Writer, level string) *slog.Logger {
	return NewWithLeveler(w, ParseLevel(level))
}

// NewWithLeveler is New with a caller-owned level, typically a *slog.LevelVar
// the server adjusts when its settings are reloaded.
func NewWithLeveler(w io.Writer, level slog.Leveler) *slog.Logger {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewCorrelationHandler(inner))
}
