package annostore

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with annostore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogPropagation logs the mirror side of a write. A failure here is a
// divergence between the two stores, not a failed request, so it is a
// warning rather than an error.
func (l *Logger) LogPropagation(ctx context.Context, op, noteID string, err error) {
	if err != nil {
		l.WarnContext(ctx, "index propagation failed; note committed but unmirrored",
			"op", op,
			"note_id", noteID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "index propagation completed",
			"op", op,
			"note_id", noteID,
		)
	}
}

// LogSearchRoute logs which backing store served a search.
func (l *Logger) LogSearchRoute(ctx context.Context, source SearchSource, results int) {
	l.DebugContext(ctx, "search served",
		"source", source.String(),
		"results", results,
	)
}

// LogRebuild logs the result of a rebuild run.
func (l *Logger) LogRebuild(ctx context.Context, stats RebuildStats) {
	l.InfoContext(ctx, "rebuild finished",
		"indexed", stats.Indexed,
		"failed", stats.Failed,
		"pruned", stats.Pruned,
	)
}
