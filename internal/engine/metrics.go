package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// engineMetrics holds the engine's OTEL instruments. A nil receiver
// disables recording, so metric failures never block scoring.
type engineMetrics struct {
	recomputeDuration   metric.Float64Histogram
	propagateIterations metric.Int64Histogram
	cacheReads          metric.Int64Counter
	invalidatedClaims   metric.Int64Counter
}

func newEngineMetrics() (*engineMetrics, error) {
	meter := otel.Meter("reasonrank/engine")

	recompute, err1 := meter.Float64Histogram("reasonrank.recompute.duration",
		metric.WithDescription("Score recomputation duration"),
		metric.WithUnit("s"))
	iterations, err2 := meter.Int64Histogram("reasonrank.propagate.iterations",
		metric.WithDescription("Iterations until the global pass converged or was cut off"))
	reads, err3 := meter.Int64Counter("reasonrank.cache.reads",
		metric.WithDescription("Score cache reads by outcome (hit, stale, miss)"))
	invalidated, err4 := meter.Int64Counter("reasonrank.invalidated.claims",
		metric.WithDescription("Claims marked stale by ancestor invalidation"))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}
	return &engineMetrics{
		recomputeDuration:   recompute,
		propagateIterations: iterations,
		cacheReads:          reads,
		invalidatedClaims:   invalidated,
	}, nil
}

func (m *engineMetrics) recordRecompute(ctx context.Context, mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.recomputeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *engineMetrics) recordPropagation(ctx context.Context, iterations int, converged bool) {
	if m == nil {
		return
	}
	m.propagateIterations.Record(ctx, int64(iterations),
		metric.WithAttributes(attribute.Bool("converged", converged)))
}

func (m *engineMetrics) recordCacheRead(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.cacheReads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *engineMetrics) recordInvalidation(ctx context.Context, claims int) {
	if m == nil {
		return
	}
	m.invalidatedClaims.Add(ctx, int64(claims))
}
