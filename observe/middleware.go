package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/storageops/resilience"
)

// Middleware bundles the tracer, metrics and logger that instrument each
// backend attempt.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: outcomes from the wrapped operation are recorded and
//     propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced with
// no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Metrics returns the middleware's metrics recorder.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Instrument returns a resilience middleware that opens a span, records
// metrics and logs every invocation of the wrapped operation.
func Instrument[T any](m *Middleware, meta OpMeta) resilience.Middleware[T] {
	return func(next resilience.Operation[T]) resilience.Operation[T] {
		if m == nil {
			return next
		}
		return func(ctx context.Context) resilience.Outcome[T] {
			ctx, span := m.tracer.StartSpan(ctx, meta)
			start := time.Now()

			out := next(ctx).Normalized()

			duration := time.Since(start)
			m.tracer.EndSpan(span, out.Err)
			m.metrics.RecordOperation(ctx, meta, duration, out.Err)

			fields := []Field{
				{Key: "duration_ms", Value: durationMs(duration)},
				{Key: "outcome", Value: out.Kind.String()},
			}
			if meta.Attempt > 0 {
				fields = append(fields, Field{Key: "attempt", Value: meta.Attempt})
			}

			opLogger := m.logger.WithOp(meta)
			switch out.Kind {
			case resilience.OutcomeSuccess:
				opLogger.Debug(ctx, "storage attempt completed", fields...)
			case resilience.OutcomePermanent:
				fields = append(fields, Field{Key: "error", Value: out.Err.Error()})
				opLogger.Info(ctx, "storage attempt rejected", fields...)
			default:
				fields = append(fields, Field{Key: "error", Value: out.Err.Error()})
				opLogger.Warn(ctx, "storage attempt failed", fields...)
			}

			return out
		}
	}
}
