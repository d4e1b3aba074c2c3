// Package ctxlog carries a slog.Logger through context.Context so library
// code can log without threading a logger parameter through every call.
package ctxlog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithLogger embeds logger in the returned context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger embedded in ctx. A context without one
// yields the process-wide default logger, so callers never get nil.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
