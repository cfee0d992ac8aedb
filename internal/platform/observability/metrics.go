package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/calvinseptyanto-clone/what-i-meant/internal/generators"

// GenerationMetrics records media generation outcomes. The zero value and a nil pointer
// are both safe to use and record nothing.
type GenerationMetrics struct {
	attempts  metric.Int64Counter
	cacheHits metric.Int64Counter
	duration  metric.Float64Histogram
	polls     metric.Int64Histogram
}

// NewGenerationMetrics registers instruments on the supplied meter, or on the global
// meter provider when m is nil.
func NewGenerationMetrics(m metric.Meter) (*GenerationMetrics, error) {
	if m == nil {
		m = otel.GetMeterProvider().Meter(meterName)
	}
	attempts, err := m.Int64Counter("media.generation.attempts",
		metric.WithDescription("Backend generation attempts by media kind and outcome"))
	if err != nil {
		return nil, err
	}
	cacheHits, err := m.Int64Counter("media.generation.cache_hits",
		metric.WithDescription("Generation requests satisfied by an existing stored artifact"))
	if err != nil {
		return nil, err
	}
	duration, err := m.Float64Histogram("media.generation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock time spent generating one artifact"))
	if err != nil {
		return nil, err
	}
	polls, err := m.Int64Histogram("media.generation.polls",
		metric.WithDescription("Status polls issued per asynchronous generation job"))
	if err != nil {
		return nil, err
	}
	return &GenerationMetrics{attempts: attempts, cacheHits: cacheHits, duration: duration, polls: polls}, nil
}

// CacheHit records a generation skipped because the artifact already exists.
func (g *GenerationMetrics) CacheHit(ctx context.Context, kind string) {
	if g == nil || g.cacheHits == nil {
		return
	}
	g.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Attempt records one backend generation attempt.
func (g *GenerationMetrics) Attempt(ctx context.Context, kind, outcome string, elapsed time.Duration) {
	if g == nil || g.attempts == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome))
	g.attempts.Add(ctx, 1, attrs)
	g.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// Polls records how many status polls a job needed.
func (g *GenerationMetrics) Polls(ctx context.Context, kind string, polls int) {
	if g == nil || g.polls == nil {
		return
	}
	g.polls.Record(ctx, int64(polls), metric.WithAttributes(attribute.String("kind", kind)))
}
