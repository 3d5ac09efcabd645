package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{StateClosed, StateOpen, StateHalfOpen} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("%w: state %q", ErrUnknownName, text)
}

// SuccessPolicy decides what a success does to the failure count while
// the breaker is closed.
type SuccessPolicy int

const (
	// ResetOnSuccess clears the failure count on any success.
	ResetOnSuccess SuccessPolicy = iota
	// DecrementOnSuccess lowers the failure count by one per success.
	DecrementOnSuccess
)

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures that opens the circuit.
	// Default: 5
	FailureThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// HalfOpenMaxCalls is the max concurrent probe calls in half-open state.
	// Default: 1
	HalfOpenMaxCalls int

	// SuccessThreshold is the number of half-open successes that closes the circuit.
	// Default: 1
	SuccessThreshold int

	// MaxHistorySize bounds the event history kept for introspection.
	// Zero disables history.
	MaxHistorySize int

	// SuccessPolicy applies to successes while closed.
	// Default: ResetOnSuccess
	SuccessPolicy SuccessPolicy

	// OnStateChange is called after the state changes, outside the lock.
	OnStateChange func(name string, from, to State)

	// Clock supplies time. Default: SystemClock
	Clock Clock
}

// Validate checks the breaker invariants.
func (c CircuitBreakerConfig) Validate() error {
	switch {
	case c.FailureThreshold < 1:
		return &ConfigError{Field: "circuit_breaker.failure_threshold", Reason: "must be at least 1"}
	case c.OpenTimeout <= 0:
		return &ConfigError{Field: "circuit_breaker.timeout", Reason: "must be positive"}
	case c.HalfOpenMaxCalls < 1:
		return &ConfigError{Field: "circuit_breaker.half_open_max_calls", Reason: "must be at least 1"}
	case c.SuccessThreshold < 1:
		return &ConfigError{Field: "circuit_breaker.success_threshold", Reason: "must be at least 1"}
	case c.MaxHistorySize < 0:
		return &ConfigError{Field: "circuit_breaker.max_history_size", Reason: "must not be negative"}
	}
	return nil
}

// Ticket is issued by Allow and handed back with the outcome. Outcomes whose
// ticket predates the latest transition never drive a transition.
type Ticket struct {
	generation uint64
	state      State
}

// EventKind labels an entry in the breaker history.
type EventKind int

const (
	EventSuccess EventKind = iota
	EventFailure
	EventIgnored
	EventRejected
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventIgnored:
		return "ignored"
	case EventRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(text []byte) error {
	for _, v := range []EventKind{EventSuccess, EventFailure, EventIgnored, EventRejected} {
		if v.String() == string(text) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("%w: event %q", ErrUnknownName, text)
}

// BreakerEvent is one recorded outcome.
type BreakerEvent struct {
	Time  time.Time `json:"time"`
	Kind  EventKind `json:"kind"`
	State State     `json:"state"`
	Stale bool      `json:"stale,omitempty"`
}

// CircuitBreaker implements the circuit breaker pattern for one target.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	clock  Clock

	mu            sync.Mutex
	state         State
	generation    uint64
	failures      int
	successes     int
	lastFailure   time.Time
	halfOpenCount int
	history       []BreakerEvent
	historyNext   int
}

type transition struct {
	from, to State
}

// WithDefaults returns c with zero fields replaced by their defaults.
func (c CircuitBreakerConfig) WithDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.MaxHistorySize < 0 {
		c.MaxHistorySize = 0
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	return c
}

// NewCircuitBreaker creates a new circuit breaker. Zero config fields take
// their defaults.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	config = config.WithDefaults()

	return &CircuitBreaker{
		name:    name,
		config:  config,
		clock:   config.Clock,
		state:   StateClosed,
		history: make([]BreakerEvent, 0, config.MaxHistorySize),
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Allow reports whether a call may proceed. When it returns true the caller
// must report the outcome with exactly one of ReportSuccess, ReportFailure
// or ReportIgnored.
func (cb *CircuitBreaker) Allow() (Ticket, bool) {
	cb.mu.Lock()
	now := cb.clock.Now()

	var changed *transition
	if cb.state == StateOpen && now.Sub(cb.lastFailure) >= cb.config.OpenTimeout {
		changed = cb.setStateLocked(StateHalfOpen)
	}

	allowed := true
	switch cb.state {
	case StateOpen:
		allowed = false
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxCalls {
			allowed = false
		} else {
			cb.halfOpenCount++
		}
	}
	if !allowed {
		cb.recordLocked(now, EventRejected, false)
	}
	ticket := Ticket{generation: cb.generation, state: cb.state}
	cb.mu.Unlock()

	cb.notify(changed)
	return ticket, allowed
}

// Available reports whether Allow would currently admit a call, without
// reserving a probe slot or changing state.
func (cb *CircuitBreaker) Available() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		return cb.clock.Now().Sub(cb.lastFailure) >= cb.config.OpenTimeout
	case StateHalfOpen:
		return cb.halfOpenCount < cb.config.HalfOpenMaxCalls
	default:
		return true
	}
}

// ReportSuccess records a successful call.
func (cb *CircuitBreaker) ReportSuccess(t Ticket) {
	cb.mu.Lock()
	now := cb.clock.Now()
	stale := cb.releaseLocked(t)
	cb.recordLocked(now, EventSuccess, stale)

	var changed *transition
	if !stale {
		switch cb.state {
		case StateClosed:
			if cb.config.SuccessPolicy == DecrementOnSuccess {
				if cb.failures > 0 {
					cb.failures--
				}
			} else {
				cb.failures = 0
			}
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				changed = cb.setStateLocked(StateClosed)
			}
		}
	}
	cb.mu.Unlock()

	cb.notify(changed)
}

// ReportFailure records a failed call that counts against the target.
func (cb *CircuitBreaker) ReportFailure(t Ticket) {
	cb.mu.Lock()
	now := cb.clock.Now()
	stale := cb.releaseLocked(t)
	cb.recordLocked(now, EventFailure, stale)

	var changed *transition
	if !stale {
		switch cb.state {
		case StateClosed:
			cb.failures++
			cb.lastFailure = now
			if cb.failures >= cb.config.FailureThreshold {
				changed = cb.setStateLocked(StateOpen)
			}
		case StateHalfOpen:
			// Failed during probe, go back to open and restart the timer
			cb.lastFailure = now
			changed = cb.setStateLocked(StateOpen)
		}
	}
	cb.mu.Unlock()

	cb.notify(changed)
}

// ReportIgnored releases the call without counting it, for outcomes that
// say nothing about the target's health (permanent errors, cancellation).
func (cb *CircuitBreaker) ReportIgnored(t Ticket) {
	cb.mu.Lock()
	stale := cb.releaseLocked(t)
	cb.recordLocked(cb.clock.Now(), EventIgnored, stale)
	cb.mu.Unlock()
}

// Execute runs the operation through the circuit breaker. Errors marked
// Permanent are returned without being counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	t, ok := cb.Allow()
	if !ok {
		return &CircuitOpenError{Breaker: cb.name}
	}

	err := op(ctx)
	switch {
	case err == nil:
		cb.ReportSuccess(t)
	case IsPermanent(err) || ctx.Err() != nil:
		cb.ReportIgnored(t)
	default:
		cb.ReportFailure(t)
	}
	return err
}

// State returns the current circuit state. An open circuit whose timeout
// has elapsed still reports open until the next call moves it to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.setStateLocked(StateClosed)
	cb.failures = 0
	cb.successes = 0
	cb.mu.Unlock()

	cb.notify(changed)
}

// releaseLocked frees a half-open slot held by t and reports whether t is
// stale.
func (cb *CircuitBreaker) releaseLocked(t Ticket) bool {
	stale := t.generation != cb.generation
	if !stale && t.state == StateHalfOpen && cb.halfOpenCount > 0 {
		cb.halfOpenCount--
	}
	return stale
}

// setStateLocked moves to state, starting a new generation with zeroed
// counters. It returns nil when nothing changed.
func (cb *CircuitBreaker) setStateLocked(state State) *transition {
	from := cb.state
	if from == state {
		return nil
	}
	cb.state = state
	cb.generation++
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCount = 0
	return &transition{from: from, to: state}
}

func (cb *CircuitBreaker) recordLocked(now time.Time, kind EventKind, stale bool) {
	size := cb.config.MaxHistorySize
	if size == 0 {
		return
	}
	ev := BreakerEvent{Time: now, Kind: kind, State: cb.state, Stale: stale}
	if len(cb.history) < size {
		cb.history = append(cb.history, ev)
		return
	}
	cb.history[cb.historyNext] = ev
	cb.historyNext = (cb.historyNext + 1) % size
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, t.from, t.to)
	}
}

// Snapshot returns a consistent copy of the breaker state.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	history := make([]BreakerEvent, 0, len(cb.history))
	if len(cb.history) == cb.config.MaxHistorySize && cb.historyNext > 0 {
		history = append(history, cb.history[cb.historyNext:]...)
		history = append(history, cb.history[:cb.historyNext]...)
	} else {
		history = append(history, cb.history...)
	}

	var retryAt time.Time
	if cb.state == StateOpen {
		retryAt = cb.lastFailure.Add(cb.config.OpenTimeout)
	}

	return BreakerSnapshot{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failures,
		SuccessCount:     cb.successes,
		LastFailure:      cb.lastFailure,
		RetryAt:          retryAt,
		HalfOpenInFlight: cb.halfOpenCount,
		Generation:       cb.generation,
		History:          history,
	}
}

// BreakerSnapshot contains circuit breaker state for introspection.
type BreakerSnapshot struct {
	Name             string         `json:"name"`
	State            State          `json:"state"`
	FailureCount     int            `json:"failureCount"`
	SuccessCount     int            `json:"successCount"`
	LastFailure      time.Time      `json:"lastFailure"`
	RetryAt          time.Time      `json:"retryAt"`
	HalfOpenInFlight int            `json:"halfOpenInFlight"`
	Generation       uint64         `json:"generation"`
	History          []BreakerEvent `json:"history,omitempty"`
}
