package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceIDKey
)

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or slog.Default() if there is none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// WithTraceID stores a correlation ID in ctx and attaches it to the context
// logger as trace_id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return WithLogger(ctx, FromContext(ctx).With("trace_id", traceID))
}

// TraceIDFromContext returns the correlation ID stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
