// Package requestctx carries request-scoped values shared by middleware, handlers and
// the event loggers in services.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	batchKey  struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace context of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func value[T any](ctx context.Context, key any) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger stores logger on ctx. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(orBackground(ctx), loggerKey{}, logger)
}

// Logger returns the request logger, or the shared no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := value[*zap.Logger](ctx, loggerKey{}); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the logger returned when none was stored.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return value[TraceInfo](ctx, traceKey{})
}

// TraceID returns the trace id of ctx or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithBatchID tags ctx with the categorisation batch being processed so every event
// logged during generation can be correlated with the batch response.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(orBackground(ctx), batchKey{}, id)
}

// BatchID returns the batch id stored on ctx or "".
func BatchID(ctx context.Context) string {
	id, _ := value[string](ctx, batchKey{})
	return id
}

// Detach keeps the values of ctx but drops its cancellation, for follow-up work such as
// event publication that should not be abandoned when the client disconnects.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(orBackground(ctx))
}
