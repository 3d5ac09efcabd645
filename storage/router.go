package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/observe"
	"github.com/jonwraymond/storageops/resilience"
)

// Routed is a successful result together with the routing trail that
// produced it.
type Routed[T any] struct {
	Value T

	// Backend is the ID of the backend that served the call.
	Backend string

	// Attempted lists the backends tried, in order, ending with Backend.
	Attempted []string

	// Skipped lists the backends the candidate filter left out.
	Skipped []SkippedBackend
}

// Option configures a Router.
type Option func(*Router)

// WithMonitor sets the health monitor consulted by the candidate filter.
// Backends not yet registered with it are registered by NewRouter.
func WithMonitor(m *health.Monitor) Option {
	return func(r *Router) {
		r.monitor = m
	}
}

// WithMiddleware sets the instrumentation applied to every attempt.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(r *Router) {
		r.mw = mw
	}
}

// WithLogger sets the router logger. By default the middleware logger is
// used.
func WithLogger(l observe.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used by retries, breakers and the fallback
// timeout.
func WithClock(c resilience.Clock) Option {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithJitterSource sets the random source used for retry jitter.
func WithJitterSource(src resilience.JitterSource) Option {
	return func(r *Router) {
		r.jitter = src
	}
}

// Router routes each storage operation to the first eligible backend in
// priority order, retrying transient failures per backend and failing over
// to the next candidate within the fallback budget.
type Router struct {
	config   Config
	backends map[string]Backend
	priority atomic.Pointer[[]string]
	setMu    sync.Mutex

	retry     *resilience.Retry
	breakers  *resilience.BreakerGroup
	bulkheads map[string]*resilience.Bulkhead
	monitor   *health.Monitor

	mw      *observe.Middleware
	logger  observe.Logger
	metrics observe.Metrics
	clock   resilience.Clock
	jitter  resilience.JitterSource
}

// NewRouter validates cfg and builds a router over backends.
func NewRouter(cfg Config, backends []Backend, opts ...Option) (*Router, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		config:   cfg,
		backends: make(map[string]Backend, len(backends)),
		clock:    resilience.SystemClock,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mw == nil {
		r.mw = observe.NewMiddleware(nil, nil, r.logger)
	}
	if r.logger == nil {
		r.logger = r.mw.Logger()
	}
	r.metrics = r.mw.Metrics()

	order := make([]string, 0, len(backends))
	for _, b := range backends {
		if b == nil {
			return nil, &resilience.ConfigError{Field: "storage.backends", Reason: "nil backend"}
		}
		id := b.ID()
		if id == "" {
			return nil, &resilience.ConfigError{Field: "storage.backends", Reason: "backend with empty id"}
		}
		if _, dup := r.backends[id]; dup {
			return nil, &resilience.ConfigError{Field: "storage.backends", Reason: fmt.Sprintf("duplicate backend id %q", id)}
		}
		r.backends[id] = b
		order = append(order, id)
	}

	if len(cfg.Priority) > 0 {
		if err := r.validatePriority(cfg.Priority); err != nil {
			return nil, err
		}
		order = slices.Clone(cfg.Priority)
	}
	r.priority.Store(&order)

	retryCfg := cfg.Retry
	if !cfg.RetryEnabled {
		retryCfg.MaxAttempts = 1
	}
	r.retry = resilience.NewRetry(retryCfg, resilience.WithClock(r.clock), resilience.WithJitterSource(r.jitter))

	if cfg.BreakerEnabled {
		bc := cfg.Breaker
		if bc.Clock == nil {
			bc.Clock = r.clock
		}
		userHook := bc.OnStateChange
		bc.OnStateChange = func(name string, from, to resilience.State) {
			r.onBreakerTransition(name, from, to)
			if userHook != nil {
				userHook(name, from, to)
			}
		}
		r.breakers = resilience.NewBreakerGroup(bc)
		for _, id := range order {
			r.breakers.Get(id)
		}
	}

	if cfg.MaxConcurrent > 0 {
		r.bulkheads = make(map[string]*resilience.Bulkhead, len(backends))
		for id := range r.backends {
			r.bulkheads[id] = resilience.NewBulkhead(id, resilience.BulkheadConfig{
				MaxConcurrent: cfg.MaxConcurrent,
				MaxWait:       cfg.BulkheadMaxWait,
			})
		}
	}

	if r.monitor != nil {
		for _, b := range backends {
			if err := r.monitor.Register(b); err != nil && !errors.Is(err, health.ErrDuplicateBackend) {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Router) onBreakerTransition(name string, from, to resilience.State) {
	ctx := context.Background()
	r.metrics.RecordBreakerTransition(ctx, name, from.String(), to.String())
	fields := []observe.Field{
		observe.F("backend", name),
		observe.F("from", from.String()),
		observe.F("to", to.String()),
	}
	if to == resilience.StateOpen {
		r.logger.Warn(ctx, "circuit breaker opened", fields...)
		return
	}
	r.logger.Info(ctx, "circuit breaker state changed", fields...)
}

func (r *Router) validatePriority(ids []string) error {
	if len(ids) == 0 {
		return &resilience.ConfigError{Field: "storage.priority", Reason: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := r.backends[id]; !ok {
			return fmt.Errorf("%w: %w", ErrUnknownBackend, &resilience.ConfigError{Field: "storage.priority", Reason: fmt.Sprintf("unknown backend %q", id)})
		}
		if _, dup := seen[id]; dup {
			return &resilience.ConfigError{Field: "storage.priority", Reason: fmt.Sprintf("duplicate backend %q", id)}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// SetPriority replaces the candidate order. Calls already routing keep the
// order they started with. Backends left out of ids are never tried.
func (r *Router) SetPriority(ids []string) error {
	r.setMu.Lock()
	defer r.setMu.Unlock()
	if err := r.validatePriority(ids); err != nil {
		return err
	}
	next := slices.Clone(ids)
	r.priority.Store(&next)
	r.logger.Info(context.Background(), "storage priority updated", observe.F("priority", next))
	return nil
}

// Priority returns a copy of the current candidate order.
func (r *Router) Priority() []string {
	return slices.Clone(*r.priority.Load())
}

// Backend returns the backend registered under id.
func (r *Router) Backend(id string) (Backend, error) {
	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return b, nil
}

// Breaker returns the circuit breaker of a backend, or nil when breakers
// are disabled.
func (r *Router) Breaker(id string) *resilience.CircuitBreaker {
	if r.breakers == nil {
		return nil
	}
	cb, _ := r.breakers.Lookup(id)
	return cb
}

// Monitor returns the health monitor, which may be nil.
func (r *Router) Monitor() *health.Monitor { return r.monitor }

// healthStatuses reads one published snapshot. Backends missing from it
// map to the zero value, StatusUnknown.
func (r *Router) healthStatuses() map[string]health.Status {
	if r.monitor == nil {
		return nil
	}
	all := r.monitor.AllHealth()
	out := make(map[string]health.Status, len(all))
	for id, h := range all {
		out[id] = h.Status
	}
	return out
}

// candidates returns the eligible backends in try order and the skipped ones
// in priority order.
func (r *Router) candidates() ([]Backend, []SkippedBackend) {
	order := *r.priority.Load()
	status := r.healthStatuses()

	var (
		eligible []Backend
		skipped  []SkippedBackend
	)
	for _, id := range order {
		b := r.backends[id]
		if cb := r.Breaker(id); cb != nil && !cb.Available() {
			skipped = append(skipped, SkippedBackend{Backend: id, Reason: SkipCircuitOpen})
			continue
		}
		if status[id] == health.StatusUnhealthy {
			skipped = append(skipped, SkippedBackend{Backend: id, Reason: SkipUnhealthy})
			continue
		}
		eligible = append(eligible, b)
	}

	if r.config.FallbackStrategy == FallbackHealth {
		slices.SortStableFunc(eligible, func(a, b Backend) int {
			return healthTier(status[a.ID()]) - healthTier(status[b.ID()])
		})
	}
	return eligible, skipped
}

func healthTier(s health.Status) int {
	switch s {
	case health.StatusHealthy:
		return 0
	case health.StatusUnknown:
		return 1
	default:
		return 2
	}
}

// Execute validates op and routes it.
func (r *Router) Execute(ctx context.Context, op Operation) (Routed[Result], error) {
	if err := op.Validate(); err != nil {
		return Routed[Result]{}, err
	}
	return Route(ctx, r, op.Type.String(), func(ctx context.Context, b Backend) resilience.Outcome[Result] {
		return b.Call(ctx, op)
	})
}

// Route runs call against the eligible backends of r in order until one
// succeeds.
//
// Each candidate gets the full retry policy behind its own breaker and
// bulkhead. A permanent failure or cancellation ends routing with that
// error. Otherwise the next candidate is tried while the fallback budget
// and timeout allow. When fallback is disabled the first candidate's
// terminal error is returned as is; in every other failure case the error
// is an *AllBackendsExhaustedError.
func Route[T any](ctx context.Context, r *Router, opType string, call func(context.Context, Backend) resilience.Outcome[T]) (Routed[T], error) {
	candidates, skipped := r.candidates()
	routed := Routed[T]{Skipped: skipped}

	if len(candidates) == 0 {
		err := &AllBackendsExhaustedError{Op: opType, Skipped: skipped}
		r.logger.Error(ctx, "no eligible storage backend", observe.F("op", opType), observe.F("error", err))
		return routed, err
	}

	budget := 1
	if r.config.FallbackEnabled {
		budget += r.config.FallbackMaxRetries
	}

	start := r.clock.Now()
	var causes []BackendFailure

	for i, b := range candidates {
		id := b.ID()
		if i > 0 {
			if i >= budget {
				break
			}
			if r.config.FallbackTimeout > 0 && r.clock.Now().Sub(start) >= r.config.FallbackTimeout {
				r.logger.Warn(ctx, "storage fallback timeout reached",
					observe.F("op", opType),
					observe.F("elapsed_ms", r.clock.Now().Sub(start).Milliseconds()))
				break
			}
			prev := candidates[i-1].ID()
			r.metrics.RecordFallback(ctx, opType, prev, id)
			r.logger.Warn(ctx, "storage fallback",
				observe.F("op", opType),
				observe.F("from", prev),
				observe.F("to", id),
				observe.F("error", causes[len(causes)-1].Err))
		}

		routed.Attempted = append(routed.Attempted, id)
		v, err := attemptBackend(ctx, r, b, opType, call)
		if err == nil {
			routed.Value = v
			routed.Backend = id
			return routed, nil
		}

		if resilience.IsCancelled(err) || resilience.IsPermanent(err) || !r.config.FallbackEnabled {
			return routed, err
		}
		causes = append(causes, BackendFailure{Backend: id, Err: err})
	}

	err := &AllBackendsExhaustedError{Op: opType, Causes: causes, Skipped: skipped}
	r.logger.Error(ctx, "storage backends exhausted",
		observe.F("op", opType),
		observe.F("attempted", routed.Attempted),
		observe.F("error", err))
	return routed, err
}

// attemptBackend runs the retry policy for one backend.
func attemptBackend[T any](ctx context.Context, r *Router, b Backend, opType string, call func(context.Context, Backend) resilience.Outcome[T]) (T, error) {
	id := b.ID()
	inner := func(ctx context.Context) resilience.Outcome[T] { return call(ctx, b) }

	// Attempts run on their own goroutine when an attempt timeout is set.
	var attempt atomic.Int32
	op := func(ctx context.Context) resilience.Outcome[T] {
		meta := observe.OpMeta{Op: opType, Backend: id, Kind: b.Kind(), Attempt: int(attempt.Add(1))}
		return resilience.Chain(inner,
			observe.Instrument[T](r.mw, meta),
			resilience.Limit[T](r.bulkheads[id]),
		)(ctx)
	}

	return resilience.ExecuteWithRetry(ctx, r.retry, r.Breaker(id), op)
}
