package intake

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// ContextWithLogger attaches a request-scoped logger, typically one carrying
// a correlation id, to ctx.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return loggerFrom(ctx, e.logger)
}

func (f *Finalizer) log(ctx context.Context) *slog.Logger {
	return loggerFrom(ctx, f.logger)
}
