package veloxdb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with veloxdb-specific context.
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
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

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, id ID, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"id", uint32(id),
			"dimension", dimension,
		)
	}
}

// LogBuild logs an index build.
func (l *Logger) LogBuild(ctx context.Context, k int, metric Metric, stats Stats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"clusters", k,
			"metric", metric.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index built",
			"clusters", stats.Clusters,
			"metric", metric.String(),
			"iterations", stats.Iterations,
			"converged", stats.Converged,
			"reseeded", stats.Reseeded,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, metric Metric, res Result, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"metric", metric.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"metric", metric.String(),
			"id", uint32(res.ID),
			"cluster", res.Cluster,
			"scanned", res.Scanned,
		)
	}
}

// LogPersist logs a save or load of path.
func (l *Logger) LogPersist(ctx context.Context, op, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"path", path,
		)
	}
}
