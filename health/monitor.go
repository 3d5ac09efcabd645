package health

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/storageops/observe"
	"github.com/jonwraymond/storageops/resilience"
)

// MonitorConfig configures the health monitor.
type MonitorConfig struct {
	// Interval is the time between probe ticks.
	// Default: 30 seconds
	Interval time.Duration

	// Timeout bounds a single probe.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of extra probes per tick after a failure.
	MaxRetries int

	// Window is the number of ticks the success rate is computed over.
	// Default: 10
	Window int

	// Thresholds classify each backend after every tick.
	Thresholds Thresholds

	// OnStatusChange is called after a backend's published status changes.
	OnStatusChange func(id string, from, to Status)
}

// Validate checks the monitor invariants.
func (c MonitorConfig) Validate() error {
	switch {
	case c.Interval < 0:
		return &resilience.ConfigError{Field: "health_check.interval", Reason: "must not be negative"}
	case c.Timeout < 0:
		return &resilience.ConfigError{Field: "health_check.timeout", Reason: "must not be negative"}
	case c.MaxRetries < 0:
		return &resilience.ConfigError{Field: "health_check.max_retries", Reason: "must not be negative"}
	case c.Window < 0:
		return &resilience.ConfigError{Field: "health_check.window", Reason: "must not be negative"}
	case c.Thresholds.UnhealthyBelow < 0 || c.Thresholds.UnhealthyBelow > 1:
		return &resilience.ConfigError{Field: "health_check.unhealthy_below", Reason: "must be between 0 and 1"}
	case c.Thresholds.DegradedBelow < 0 || c.Thresholds.DegradedBelow > 1:
		return &resilience.ConfigError{Field: "health_check.degraded_below", Reason: "must be between 0 and 1"}
	}
	return nil
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Window <= 0 {
		c.Window = 10
	}
	d := DefaultThresholds()
	if c.Thresholds.UnhealthyBelow <= 0 {
		c.Thresholds.UnhealthyBelow = d.UnhealthyBelow
	}
	if c.Thresholds.DegradedBelow <= 0 {
		c.Thresholds.DegradedBelow = d.DegradedBelow
	}
	return c
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the logger for status changes and probe failures.
func WithLogger(l observe.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the recorder for probe latency.
func WithMetrics(mt observe.Metrics) MonitorOption {
	return func(m *Monitor) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithClock sets the clock used to timestamp probes.
func WithClock(c resilience.Clock) MonitorOption {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// window is the rolling probe history of one backend. It is only touched
// while holding Monitor.writeMu.
type window struct {
	outcomes []bool
	next     int
	filled   int
}

func (w *window) add(ok bool) {
	w.outcomes[w.next] = ok
	w.next = (w.next + 1) % len(w.outcomes)
	if w.filled < len(w.outcomes) {
		w.filled++
	}
}

func (w *window) rate() float64 {
	if w.filled == 0 {
		return 0
	}
	ok := 0
	for i := 0; i < w.filled; i++ {
		if w.outcomes[i] {
			ok++
		}
	}
	return float64(ok) / float64(w.filled)
}

type probeOutcome struct {
	id      string
	result  ProbeResult
	latency time.Duration
}

type statusChange struct {
	id       string
	from, to Status
	lastErr  string
}

// Monitor probes registered backends on a fixed interval and publishes an
// immutable health snapshot after every tick.
//
// Writes are serialized: one tick runs at a time and concurrent CheckNow
// callers share it. Readers load the published snapshot atomically and
// never observe a partially updated record.
type Monitor struct {
	config  MonitorConfig
	logger  observe.Logger
	metrics observe.Metrics
	clock   resilience.Clock

	snapshot atomic.Pointer[map[string]BackendHealth]
	ticks    singleflight.Group

	writeMu sync.Mutex
	probers []Prober
	windows map[string]*window

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor creates a stopped monitor with no backends.
func NewMonitor(config MonitorConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		config:  config.withDefaults(),
		logger:  observe.NopLogger(),
		metrics: observe.NopMetrics(),
		clock:   resilience.SystemClock,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(m)
	}
	empty := make(map[string]BackendHealth)
	m.snapshot.Store(&empty)
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() MonitorConfig { return m.config }

// Register adds a backend. Its health starts as unknown.
func (m *Monitor) Register(p Prober) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	id := p.ID()
	if _, ok := m.windows[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, id)
	}
	m.probers = append(m.probers, p)
	m.windows[id] = &window{outcomes: make([]bool, m.config.Window)}

	next := maps.Clone(*m.snapshot.Load())
	next[id] = BackendHealth{BackendID: id, Status: StatusUnknown}
	m.snapshot.Store(&next)
	return nil
}

// Start launches the probe loop. The first tick runs immediately. Calling
// Start on a running monitor is a no-op. A monitor whose loop ended because
// its parent context was cancelled can be started again.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.loopActive() {
		return
	}
	m.reap()
	if ctx.Err() != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.run(loopCtx, done)
}

// Stop halts the probe loop and waits for it to exit. Calling Stop on a
// stopped monitor is a no-op. A stopped monitor may be started again.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.reap()
}

// Running reports whether the probe loop is active.
func (m *Monitor) Running() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.loopActive()
}

// loopActive reports whether a loop was started and has not exited. Callers
// hold lifecycle.
func (m *Monitor) loopActive() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// reap clears the state of an exited loop. Callers hold lifecycle.
func (m *Monitor) reap() {
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = nil
	m.done = nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		if err := m.CheckNow(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn(ctx, "health tick failed", observe.F("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckNow runs one probe tick and publishes the result. Concurrent callers
// share a single tick. The shared tick is detached from every caller's
// context and bounded by the probe budget, so a caller giving up early
// returns its own context error without aborting the tick for the others.
func (m *Monitor) CheckNow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := m.ticks.DoChan("tick", func() (any, error) {
		tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.tickBudget())
		defer cancel()
		return nil, m.tick(tickCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tickBudget bounds one tick. Backends are probed in parallel and each try
// is bounded by Timeout, so one spare Timeout covers scheduling slack.
func (m *Monitor) tickBudget() time.Duration {
	return m.config.Timeout * time.Duration(m.config.MaxRetries+2)
}

func (m *Monitor) tick(ctx context.Context) error {
	m.writeMu.Lock()
	probers := make([]Prober, len(m.probers))
	copy(probers, m.probers)
	m.writeMu.Unlock()

	if len(probers) == 0 {
		return nil
	}

	results := make([]probeOutcome, len(probers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probers {
		g.Go(func() error {
			results[i] = m.probe(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		// A cancelled tick says nothing about the backends.
		return err
	}

	changes := m.publish(results)
	for _, c := range changes {
		m.announce(ctx, c)
	}
	return nil
}

// probe runs one backend's probe with up to MaxRetries extra tries.
func (m *Monitor) probe(ctx context.Context, p Prober) probeOutcome {
	var last ProbeResult
	var latency time.Duration

	for try := 0; try <= m.config.MaxRetries; try++ {
		start := time.Now()
		out := resilience.RunWithTimeout(ctx, m.config.Timeout, func(ctx context.Context) resilience.Outcome[ProbeResult] {
			res := p.Probe(ctx)
			if !res.OK {
				err := res.Err
				if err == nil {
					err = ErrProbeFailed
				}
				return resilience.Outcome[ProbeResult]{Kind: resilience.OutcomeTransient, Value: res, Err: err}
			}
			return resilience.Succeeded(res)
		})
		latency = time.Since(start)

		last = out.Value
		last.OK = out.OK()
		last.Err = out.Err
		if last.Latency > 0 {
			latency = last.Latency
		}
		m.metrics.RecordProbe(ctx, p.ID(), latency, last.OK)

		if last.OK || ctx.Err() != nil {
			break
		}
	}

	return probeOutcome{id: p.ID(), result: last, latency: latency}
}

// publish folds a tick into the rolling windows and swaps in a new snapshot.
func (m *Monitor) publish(results []probeOutcome) []statusChange {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	now := m.clock.Now()
	prev := *m.snapshot.Load()
	next := maps.Clone(prev)

	var changes []statusChange
	for _, r := range results {
		w, ok := m.windows[r.id]
		if !ok {
			continue
		}
		w.add(r.result.OK)

		h := prev[r.id]
		h.BackendID = r.id
		h.ResponseTime = r.latency
		h.SuccessRate = w.rate()
		h.Samples = w.filled
		h.LastCheckedAt = now
		if r.result.OK {
			h.ConsecutiveFailures = 0
			h.LastError = ""
			if r.result.TotalCapacity > 0 {
				h.AvailableCapacity = r.result.AvailableCapacity
				h.TotalCapacity = r.result.TotalCapacity
			}
		} else {
			h.ConsecutiveFailures++
			if r.result.Err != nil {
				h.LastError = r.result.Err.Error()
			}
		}

		from := prev[r.id].Status
		h.Status = m.config.Thresholds.Classify(h.Samples, h.SuccessRate, r.result.OK, r.latency)
		next[r.id] = h

		if from != h.Status {
			changes = append(changes, statusChange{id: r.id, from: from, to: h.Status, lastErr: h.LastError})
		}
	}

	m.snapshot.Store(&next)
	return changes
}

func (m *Monitor) announce(ctx context.Context, c statusChange) {
	fields := []observe.Field{
		observe.F("backend", c.id),
		observe.F("from", c.from.String()),
		observe.F("to", c.to.String()),
	}
	if c.lastErr != "" {
		fields = append(fields, observe.F("error", c.lastErr))
	}
	if c.to == StatusUnhealthy {
		m.logger.Warn(ctx, "backend became unhealthy", fields...)
	} else {
		m.logger.Info(ctx, "backend health changed", fields...)
	}

	if m.config.OnStatusChange != nil {
		m.config.OnStatusChange(c.id, c.from, c.to)
	}
}

// Health returns the published health of one backend.
func (m *Monitor) Health(id string) (BackendHealth, bool) {
	h, ok := (*m.snapshot.Load())[id]
	return h, ok
}

// Status returns the published status of one backend, or StatusUnknown if
// it is not registered.
func (m *Monitor) Status(id string) Status {
	h, _ := m.Health(id)
	return h.Status
}

// AllHealth returns a copy of the published snapshot.
func (m *Monitor) AllHealth() map[string]BackendHealth {
	return maps.Clone(*m.snapshot.Load())
}

// Lookup is Health with an error for unknown IDs.
func (m *Monitor) Lookup(id string) (BackendHealth, error) {
	h, ok := m.Health(id)
	if !ok {
		return BackendHealth{}, fmt.Errorf("%w: %s", ErrBackendNotFound, id)
	}
	return h, nil
}
