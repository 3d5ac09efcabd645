package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records storage routing metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one attempt against one backend.
	RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordFallback records the router moving from one backend to the next.
	RecordFallback(ctx context.Context, op, from, to string)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, backend, from, to string)

	// RecordProbe records one health probe.
	RecordProbe(ctx context.Context, backend string, duration time.Duration, ok bool)
}

type metricsImpl struct {
	opTotal      metric.Int64Counter
	opErrors     metric.Int64Counter
	opDuration   metric.Float64Histogram
	fallbacks    metric.Int64Counter
	transitions  metric.Int64Counter
	probeLatency metric.Float64Histogram
}

// NewMetrics creates the storage instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	var m metricsImpl
	var err error

	if m.opTotal, err = meter.Int64Counter(
		"storage.op.total",
		metric.WithDescription("Total number of storage operation attempts"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.opErrors, err = meter.Int64Counter(
		"storage.op.errors",
		metric.WithDescription("Total number of failed storage operation attempts"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.opDuration, err = meter.Float64Histogram(
		"storage.op.duration_ms",
		metric.WithDescription("Storage operation attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.fallbacks, err = meter.Int64Counter(
		"storage.fallback.total",
		metric.WithDescription("Number of times routing advanced to the next backend"),
		metric.WithUnit("{fallback}"),
	); err != nil {
		return nil, err
	}

	if m.transitions, err = meter.Int64Counter(
		"storage.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}

	if m.probeLatency, err = meter.Float64Histogram(
		"storage.probe.duration_ms",
		metric.WithDescription("Backend health probe duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.opTotal.Add(ctx, 1, opt)
	if err != nil {
		m.opErrors.Add(ctx, 1, opt)
	}
	m.opDuration.Record(ctx, durationMs(duration), opt)
}

func (m *metricsImpl) RecordFallback(ctx context.Context, op, from, to string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("storage.op", op),
		attribute.String("storage.from", from),
		attribute.String("storage.to", to),
	))
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, backend, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("storage.backend", backend),
		attribute.String("breaker.from", from),
		attribute.String("breaker.to", to),
	))
}

func (m *metricsImpl) RecordProbe(ctx context.Context, backend string, duration time.Duration, ok bool) {
	m.probeLatency.Record(ctx, durationMs(duration), metric.WithAttributes(
		attribute.String("storage.backend", backend),
		attribute.Bool("probe.ok", ok),
	))
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) RecordOperation(context.Context, OpMeta, time.Duration, error) {}
func (noopMetrics) RecordFallback(context.Context, string, string, string)        {}
func (noopMetrics) RecordBreakerTransition(context.Context, string, string, string) {}
func (noopMetrics) RecordProbe(context.Context, string, time.Duration, bool)      {}
