package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when max retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when a single attempt exceeds its timeout.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrCancelled is returned when the caller's context ends the sequence.
	ErrCancelled = errors.New("resilience: operation cancelled")

	// ErrInvalidConfig indicates a configuration invariant was violated.
	ErrInvalidConfig = errors.New("resilience: invalid configuration")

	// ErrUnclassifiedFailure stands in for the cause of a failed outcome
	// that carried no error.
	ErrUnclassifiedFailure = errors.New("resilience: failure without error")

	// ErrUnknownName is returned when parsing an unrecognized state or
	// event name.
	ErrUnknownName = errors.New("resilience: unknown name")
)

// CircuitOpenError reports a call rejected by an open breaker.
// No attempt was made and nothing was counted.
type CircuitOpenError struct {
	// Breaker is the name of the breaker that rejected the call.
	Breaker string

	// Last is the most recent transient cause seen before the rejection, if any.
	Last error
}

func (e *CircuitOpenError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("resilience: circuit breaker %q is open (last error: %v)", e.Breaker, e.Last)
	}
	return fmt.Sprintf("resilience: circuit breaker %q is open", e.Breaker)
}

// Is reports ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// Unwrap returns the last transient cause.
func (e *CircuitOpenError) Unwrap() error { return e.Last }

// ExhaustedRetriesError reports that a retry budget was used up.
type ExhaustedRetriesError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("resilience: gave up after %d attempt(s) in %s: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

// Is reports ErrMaxRetriesExceeded.
func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrMaxRetriesExceeded }

// Unwrap returns the last cause.
func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// CancelledError reports that the caller cancelled the sequence.
// It matches both ErrCancelled and the underlying context error.
type CancelledError struct {
	Attempts int
	Err      error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("resilience: cancelled after %d attempt(s): %v", e.Attempts, e.Err)
}

// Is reports ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error { return e.Err }

// PermanentError marks a failure that must not be retried and must not be
// charged to a circuit breaker.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that IsPermanent reports true. Nil stays nil.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsCancelled reports whether err stems from caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ConfigError describes a violated configuration invariant.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("resilience: invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is reports ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
