package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
)

// fakeBackend replays outcomes in order, repeating the last one.
type fakeBackend struct {
	id    string
	kind  string
	calls atomic.Int32

	mu       sync.Mutex
	outcomes []resilience.Outcome[Result]
	probes   []health.ProbeResult
	probeN   int
	onCall   func(ctx context.Context)
}

func newFake(id string, outcomes ...resilience.Outcome[Result]) *fakeBackend {
	if len(outcomes) == 0 {
		outcomes = []resilience.Outcome[Result]{ok(id)}
	}
	return &fakeBackend{id: id, kind: "fake", outcomes: outcomes}
}

func (b *fakeBackend) ID() string   { return b.id }
func (b *fakeBackend) Kind() string { return b.kind }

func (b *fakeBackend) Probe(ctx context.Context) health.ProbeResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.probes) == 0 {
		return health.ProbeResult{OK: true, Latency: time.Millisecond}
	}
	n := b.probeN
	if n >= len(b.probes) {
		n = len(b.probes) - 1
	}
	b.probeN++
	return b.probes[n]
}

func (b *fakeBackend) Call(ctx context.Context, op Operation) resilience.Outcome[Result] {
	n := int(b.calls.Add(1)) - 1

	b.mu.Lock()
	hook := b.onCall
	if n >= len(b.outcomes) {
		n = len(b.outcomes) - 1
	}
	out := b.outcomes[n]
	b.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if out.OK() {
		out.Value.Key = op.Key
	}
	return out
}

func ok(id string) resilience.Outcome[Result] {
	return resilience.Succeeded(Result{ETag: id, Exists: true})
}

var (
	errUnavailable = errors.New("service unavailable")
	transient      = resilience.TransientFailure[Result](errUnavailable)
	notFound       = resilience.PermanentFailure[Result](ErrNotFound)

	failingProbe = health.ProbeResult{Err: errors.New("connection refused")}
	healthyProbe = health.ProbeResult{OK: true, Latency: time.Millisecond}
)

// fakeClock advances only when slept on or moved explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig returns a fast configuration: two attempts per backend, no
// jitter, breakers that stay closed unless a test opts in.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = resilience.RetryConfig{
		MaxAttempts: 2,
		Backoff: resilience.BackoffConfig{
			Strategy:   resilience.BackoffFixed,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   10 * time.Millisecond,
			Multiplier: 1,
		},
	}
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 100}
	return cfg
}

func newTestRouter(t *testing.T, cfg Config, backends []Backend, opts ...Option) (*Router, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	r, err := NewRouter(cfg, backends, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return r, clock
}

// checkedMonitor registers backends and runs the given number of ticks.
func checkedMonitor(t *testing.T, ticks int, backends ...*fakeBackend) *health.Monitor {
	t.Helper()
	m := health.NewMonitor(health.MonitorConfig{})
	for _, b := range backends {
		if err := m.Register(b); err != nil {
			t.Fatalf("Register(%s) error = %v", b.id, err)
		}
	}
	for range ticks {
		if err := m.CheckNow(context.Background()); err != nil {
			t.Fatalf("CheckNow() error = %v", err)
		}
	}
	return m
}

func openBreaker(t *testing.T, r *Router, id string) {
	t.Helper()
	cb := r.Breaker(id)
	if cb == nil {
		t.Fatalf("Breaker(%s) = nil", id)
	}
	for cb.State() != resilience.StateOpen {
		tk, allowed := cb.Allow()
		if !allowed {
			t.Fatalf("breaker %s rejected before opening", id)
		}
		cb.ReportFailure(tk)
	}
}

func backendsOf(bs ...*fakeBackend) []Backend {
	out := make([]Backend, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}
