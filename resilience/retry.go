package resilience

import (
	"context"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// AttemptTimeout bounds a single attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration

	// TotalTimeout caps elapsed time plus the next delay. It is checked
	// before each sleep; zero means no cap.
	TotalTimeout time.Duration

	// Backoff computes the delay between attempts.
	Backoff BackoffConfig

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Validate checks the retry invariants.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return &ConfigError{Field: "retry.max_attempts", Reason: "must be at least 1"}
	case c.AttemptTimeout < 0:
		return &ConfigError{Field: "retry.attempt_timeout", Reason: "must not be negative"}
	case c.TotalTimeout < 0:
		return &ConfigError{Field: "retry.total_timeout", Reason: "must not be negative"}
	}
	return c.Backoff.Validate()
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
	clock  Clock
	jitter JitterSource
}

// RetryOption configures a Retry.
type RetryOption func(*Retry)

// WithClock sets the clock used for elapsed time and sleeps.
func WithClock(c Clock) RetryOption {
	return func(r *Retry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithJitterSource sets the random source used for jitter.
func WithJitterSource(src JitterSource) RetryOption {
	return func(r *Retry) {
		r.jitter = src
	}
}

// WithDefaults returns c with zero fields replaced by their defaults.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	c.Backoff = c.Backoff.withDefaults()
	return c
}

// NewRetry creates a new retry handler. Zero config fields take their
// defaults.
func NewRetry(config RetryConfig, opts ...RetryOption) *Retry {
	r := &Retry{config: config.WithDefaults(), clock: SystemClock}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Delay returns the backoff delay after the given failed attempt.
func (r *Retry) Delay(attempt int) time.Duration {
	return CalculateDelay(attempt, r.config.Backoff, r.jitter)
}

// Execute runs a conventional operation with retry logic. Errors wrapped
// with Permanent stop the sequence immediately.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := ExecuteWithRetry(ctx, r, nil, func(ctx context.Context) Outcome[struct{}] {
		return OutcomeOf(struct{}{}, op(ctx))
	})
	return err
}

// ExecuteWithRetry runs op until it succeeds, fails permanently, or the
// retry budget is spent.
//
// When breaker is non-nil it gates every attempt and receives every
// attempt's outcome exactly once; an open breaker short-circuits with a
// *CircuitOpenError without consuming an attempt. Permanent failures and
// cancellations are reported to the breaker as ignored.
func ExecuteWithRetry[T any](ctx context.Context, r *Retry, breaker *CircuitBreaker, op Operation[T]) (T, error) {
	var zero T
	var lastErr error
	attempts := 0

	cfg := r.config
	start := r.clock.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return zero, &CancelledError{Attempts: attempt - 1, Err: err}
		}

		var ticket Ticket
		if breaker != nil {
			t, ok := breaker.Allow()
			if !ok {
				return zero, &CircuitOpenError{Breaker: breaker.Name(), Last: lastErr}
			}
			ticket = t
		}

		attempts++
		out := RunWithTimeout(ctx, cfg.AttemptTimeout, op).Normalized()

		if !out.OK() && ctx.Err() != nil {
			if breaker != nil {
				breaker.ReportIgnored(ticket)
			}
			return zero, &CancelledError{Attempts: attempt, Err: ctx.Err()}
		}

		switch out.Kind {
		case OutcomeSuccess:
			if breaker != nil {
				breaker.ReportSuccess(ticket)
			}
			return out.Value, nil

		case OutcomePermanent:
			if breaker != nil {
				breaker.ReportIgnored(ticket)
			}
			return zero, Permanent(out.Err)
		}

		if breaker != nil {
			breaker.ReportFailure(ticket)
		}
		lastErr = out.Err

		// Don't retry if this was the last attempt
		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := r.Delay(attempt)
		if cfg.TotalTimeout > 0 && r.clock.Now().Sub(start)+delay > cfg.TotalTimeout {
			break
		}

		// Callback before retry
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		if err := r.clock.Sleep(ctx, delay); err != nil {
			return zero, &CancelledError{Attempts: attempt, Err: err}
		}
	}

	return zero, &ExhaustedRetriesError{
		Attempts: attempts,
		Elapsed:  r.clock.Now().Sub(start),
		Last:     lastErr,
	}
}
