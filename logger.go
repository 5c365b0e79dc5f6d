package partsearch

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger so the engine can log progress with
// consistent field names without forcing a logging setup on callers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler
// falls back to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text logs
// to stderr at the given level.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all output. This is the
// engine default; the library stays silent unless asked not to be.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}
