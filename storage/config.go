package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/storageops/resilience"
)

// FallbackStrategy orders the eligible candidates.
type FallbackStrategy int

const (
	// FallbackPriority keeps the configured priority order.
	FallbackPriority FallbackStrategy = iota
	// FallbackHealth tries healthy backends first, then unknown, then
	// degraded, keeping priority order within each tier.
	FallbackHealth
)

// String returns the string representation of the strategy.
func (s FallbackStrategy) String() string {
	switch s {
	case FallbackPriority:
		return "priority"
	case FallbackHealth:
		return "health"
	default:
		return "unknown"
	}
}

// ParseFallbackStrategy parses a strategy name. Empty means priority.
func ParseFallbackStrategy(s string) (FallbackStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "priority":
		return FallbackPriority, nil
	case "health", "health-based", "health_based":
		return FallbackHealth, nil
	}
	return 0, &resilience.ConfigError{Field: "storage.fallback_strategy", Reason: fmt.Sprintf("unknown strategy %q", s)}
}

// Config configures a Router.
type Config struct {
	// Priority is the candidate order by backend ID. Empty means
	// registration order.
	Priority []string

	// FallbackEnabled allows moving to the next candidate after a
	// transient failure.
	FallbackEnabled bool

	// FallbackStrategy orders the eligible candidates.
	FallbackStrategy FallbackStrategy

	// FallbackTimeout bounds the whole fallback sequence. It is checked
	// before advancing to the next candidate. Zero disables it.
	FallbackTimeout time.Duration

	// FallbackMaxRetries is the number of candidates tried after the first.
	FallbackMaxRetries int

	// RetryEnabled turns on per-backend retries. When false each candidate
	// gets exactly one attempt.
	RetryEnabled bool
	Retry        resilience.RetryConfig

	// BreakerEnabled turns on per-backend circuit breakers.
	BreakerEnabled bool
	Breaker        resilience.CircuitBreakerConfig

	// MaxConcurrent caps concurrent calls per backend. Zero disables the
	// bulkhead.
	MaxConcurrent   int
	BulkheadMaxWait time.Duration
}

// DefaultConfig returns a configuration with fallback, retries and breakers
// enabled.
func DefaultConfig() Config {
	return Config{
		FallbackEnabled:    true,
		FallbackStrategy:   FallbackPriority,
		FallbackTimeout:    30 * time.Second,
		FallbackMaxRetries: 2,
		RetryEnabled:       true,
		Retry:              resilience.RetryConfig{}.WithDefaults(),
		BreakerEnabled:     true,
		Breaker:            resilience.CircuitBreakerConfig{}.WithDefaults(),
	}
}

// Validate checks the routing invariants and those of the nested retry and
// breaker configurations after defaults are applied.
func (c Config) Validate() error {
	switch {
	case c.FallbackMaxRetries < 0:
		return &resilience.ConfigError{Field: "storage.fallback_max_retries", Reason: "must not be negative"}
	case c.FallbackTimeout < 0:
		return &resilience.ConfigError{Field: "storage.fallback_timeout", Reason: "must not be negative"}
	case c.FallbackStrategy != FallbackPriority && c.FallbackStrategy != FallbackHealth:
		return &resilience.ConfigError{Field: "storage.fallback_strategy", Reason: "unknown strategy"}
	case c.MaxConcurrent < 0:
		return &resilience.ConfigError{Field: "storage.max_concurrent", Reason: "must not be negative"}
	case c.BulkheadMaxWait < 0:
		return &resilience.ConfigError{Field: "storage.bulkhead_max_wait", Reason: "must not be negative"}
	}
	if c.RetryEnabled {
		if err := c.Retry.WithDefaults().Validate(); err != nil {
			return err
		}
	}
	if c.BreakerEnabled {
		if err := c.Breaker.WithDefaults().Validate(); err != nil {
			return err
		}
	}
	return nil
}
