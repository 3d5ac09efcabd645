package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestBreaker(clock *fakeClock, cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.Clock = clock
	return NewCircuitBreaker("test", cfg)
}

func fail(cb *CircuitBreaker) {
	if t, ok := cb.Allow(); ok {
		cb.ReportFailure(t)
	}
}

func succeed(cb *CircuitBreaker) {
	if t, ok := cb.Allow(); ok {
		cb.ReportSuccess(t)
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.OpenTimeout != 30*time.Second {
		t.Errorf("OpenTimeout = %v, want 30s", cb.config.OpenTimeout)
	}
	if cb.config.HalfOpenMaxCalls != 1 {
		t.Errorf("HalfOpenMaxCalls = %d, want 1", cb.config.HalfOpenMaxCalls)
	}
	if cb.config.SuccessThreshold != 1 {
		t.Errorf("SuccessThreshold = %d, want 1", cb.config.SuccessThreshold)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 3, OpenTimeout: time.Second})

	for i := 0; i < 2; i++ {
		fail(cb)
		if cb.State() != StateClosed {
			t.Fatalf("after %d failures State = %v, want closed", i+1, cb.State())
		}
	}
	fail(cb)
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("operation ran while circuit open")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 3})

	fail(cb)
	fail(cb)
	succeed(cb)
	fail(cb)
	fail(cb)

	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
	if got := cb.Snapshot().FailureCount; got != 2 {
		t.Errorf("FailureCount = %d, want 2", got)
	}
}

func TestCircuitBreaker_DecrementOnSuccess(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessPolicy:    DecrementOnSuccess,
	})

	fail(cb)
	fail(cb)
	succeed(cb)
	if got := cb.Snapshot().FailureCount; got != 1 {
		t.Fatalf("FailureCount = %d, want 1", got)
	}
	fail(cb)
	fail(cb)
	if cb.State() != StateOpen {
		t.Errorf("State = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: 10 * time.Second})

	fail(cb)
	clock.Advance(9 * time.Second)
	if cb.Available() {
		t.Error("Available() = true before timeout")
	}
	if _, ok := cb.Allow(); ok {
		t.Fatal("Allow() = true before timeout")
	}

	clock.Advance(time.Second)
	if !cb.Available() {
		t.Error("Available() = false after timeout")
	}
	if cb.State() != StateOpen {
		t.Errorf("State = %v before next call, want open", cb.State())
	}

	tk, ok := cb.Allow()
	if !ok {
		t.Fatal("Allow() = false after timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("State = %v, want half-open", cb.State())
	}
	cb.ReportSuccess(tk)
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: 10 * time.Second})

	fail(cb)
	clock.Advance(10 * time.Second)

	tk, ok := cb.Allow()
	if !ok {
		t.Fatal("Allow() = false")
	}
	cb.ReportFailure(tk)

	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}
	clock.Advance(5 * time.Second)
	if _, ok := cb.Allow(); ok {
		t.Error("Allow() = true, open timer was not restarted")
	}
	if want := clock.Now().Add(5 * time.Second); !cb.Snapshot().RetryAt.Equal(want) {
		t.Errorf("RetryAt = %v, want %v", cb.Snapshot().RetryAt, want)
	}
}

func TestCircuitBreaker_SuccessThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 3,
	})

	fail(cb)
	clock.Advance(time.Second)

	for i := 0; i < 2; i++ {
		succeed(cb)
		if cb.State() != StateHalfOpen {
			t.Fatalf("after %d successes State = %v, want half-open", i+1, cb.State())
		}
	}
	succeed(cb)
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenMaxCalls(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		HalfOpenMaxCalls: 2,
		SuccessThreshold: 5,
	})

	fail(cb)
	clock.Advance(time.Second)

	t1, ok1 := cb.Allow()
	_, ok2 := cb.Allow()
	_, ok3 := cb.Allow()
	if !ok1 || !ok2 {
		t.Fatal("first two half-open probes should be admitted")
	}
	if ok3 {
		t.Fatal("third half-open probe should be rejected")
	}
	if cb.Available() {
		t.Error("Available() = true with all probe slots taken")
	}

	cb.ReportSuccess(t1)
	if !cb.Available() {
		t.Error("Available() = false after a probe slot was released")
	}
	if got := cb.Snapshot().HalfOpenInFlight; got != 1 {
		t.Errorf("HalfOpenInFlight = %d, want 1", got)
	}
}

func TestCircuitBreaker_StaleTicketDiscarded(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		HalfOpenMaxCalls: 2,
		MaxHistorySize:   10,
	})

	fail(cb)
	clock.Advance(time.Second)

	slow, _ := cb.Allow()
	fast, _ := cb.Allow()
	cb.ReportFailure(fast)
	if cb.State() != StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	// The slow probe belongs to the previous half-open period.
	cb.ReportSuccess(slow)
	if cb.State() != StateOpen {
		t.Errorf("stale success moved State to %v", cb.State())
	}

	snap := cb.Snapshot()
	last := snap.History[len(snap.History)-1]
	if last.Kind != EventSuccess || !last.Stale {
		t.Errorf("last event = %+v, want stale success", last)
	}
}

func TestCircuitBreaker_ExecuteIgnoresPermanent(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 1})

	notFound := errors.New("not found")
	err := cb.Execute(context.Background(), func(context.Context) error {
		return Permanent(notFound)
	})

	if !errors.Is(err, notFound) {
		t.Errorf("Execute() error = %v, want %v", err, notFound)
	}
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return errors.New("503")
	})
	if cb.State() != StateOpen {
		t.Errorf("State = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 2})

	fail(cb)
	cb.Reset()
	if got := cb.Snapshot().FailureCount; got != 0 {
		t.Errorf("FailureCount = %d after Reset, want 0", got)
	}

	fail(cb)
	fail(cb)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State = %v after Reset, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()

	type change struct{ from, to State }
	var mu sync.Mutex
	var changes []change

	cb := newTestBreaker(clock, CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, change{from, to})
		},
	})

	fail(cb)
	clock.Advance(time.Second)
	succeed(cb)

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestCircuitBreaker_CallbackMayReenter(t *testing.T) {
	var cb *CircuitBreaker
	var seen State
	cb = NewCircuitBreaker("reentrant", CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(string, State, State) {
			seen = cb.State()
		},
	})

	fail(cb)
	if seen != StateOpen {
		t.Errorf("State seen in callback = %v, want open", seen)
	}
}

func TestCircuitBreaker_HistoryRing(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 100, MaxHistorySize: 3})

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if i%2 == 0 {
			fail(cb)
		} else {
			succeed(cb)
		}
	}

	h := cb.Snapshot().History
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	wantKinds := []EventKind{EventFailure, EventSuccess, EventFailure}
	for i, k := range wantKinds {
		if h[i].Kind != k {
			t.Errorf("history[%d].Kind = %v, want %v", i, h[i].Kind, k)
		}
	}
	for i := 1; i < len(h); i++ {
		if !h[i].Time.After(h[i-1].Time) {
			t.Errorf("history not oldest first: %v then %v", h[i-1].Time, h[i].Time)
		}
	}
}

func TestCircuitBreaker_ConcurrentFailuresOpenOnce(t *testing.T) {
	var mu sync.Mutex
	opens := 0
	cb := NewCircuitBreaker("race", CircuitBreakerConfig{
		FailureThreshold: 10,
		OpenTimeout:      time.Hour,
		OnStateChange: func(_ string, _, to State) {
			if to == StateOpen {
				mu.Lock()
				opens++
				mu.Unlock()
			}
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(cb)
		}()
	}
	wg.Wait()

	if cb.State() != StateOpen {
		t.Errorf("State = %v, want open", cb.State())
	}
	if opens != 1 {
		t.Errorf("open transitions = %d, want 1", opens)
	}
}

func TestCircuitBreakerConfig_Validate(t *testing.T) {
	valid := CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		HalfOpenMaxCalls: 1,
		SuccessThreshold: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := valid
	bad.FailureThreshold = 0
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "failure_threshold") {
		t.Errorf("Validate() error = %q, want field name", err)
	}
}

func TestBreakerSnapshot_JSON(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, CircuitBreakerConfig{FailureThreshold: 1})
	fail(cb)

	b, err := json.Marshal(cb.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{`"state":"open"`, `"failureCount":0`, `"lastFailure":`} {
		if !strings.Contains(string(b), field) {
			t.Errorf("snapshot JSON %s missing %s", b, field)
		}
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []State{StateClosed, StateOpen, StateHalfOpen} {
		data, _ := json.Marshal(s)
		var got State
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if got != s {
			t.Errorf("round trip of %v = %v", s, got)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("ajar")); !errors.Is(err, ErrUnknownName) {
		t.Errorf("UnmarshalText(ajar) error = %v, want ErrUnknownName", err)
	}
}

func TestEventKind_TextRoundTrip(t *testing.T) {
	for _, k := range []EventKind{EventSuccess, EventFailure, EventIgnored, EventRejected} {
		data, _ := json.Marshal(k)
		var got EventKind
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if got != k {
			t.Errorf("round trip of %v = %v", k, got)
		}
	}
	var k EventKind
	if err := k.UnmarshalText([]byte("maybe")); !errors.Is(err, ErrUnknownName) {
		t.Errorf("UnmarshalText(maybe) error = %v, want ErrUnknownName", err)
	}
}
