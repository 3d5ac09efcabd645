package resilience

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffFixed uses the same delay for all retries.
	BackoffFixed
)

// String returns the string representation of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffExponential:
		return "exponential"
	case BackoffLinear:
		return "linear"
	case BackoffFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseBackoffStrategy parses a strategy name. "constant" is accepted as an
// alias for "fixed".
func ParseBackoffStrategy(s string) (BackoffStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exponential":
		return BackoffExponential, nil
	case "linear":
		return BackoffLinear, nil
	case "fixed", "constant":
		return BackoffFixed, nil
	default:
		return 0, &ConfigError{Field: "backoff.strategy", Reason: fmt.Sprintf("unknown strategy %q", s)}
	}
}

// BackoffConfig configures delay calculation.
type BackoffConfig struct {
	// Strategy selects the growth curve.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// BaseDelay is the delay before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the delay before jitter is applied.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the growth factor for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// JitterEnabled perturbs each delay by up to ±JitterFactor/2 of itself.
	JitterEnabled bool

	// JitterFactor is the jitter amplitude in [0, 1].
	// Default: 0.1
	JitterFactor float64
}

// DefaultBackoffConfig returns the defaults used for zero fields.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Strategy:     BackoffExponential,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = max(d.MaxDelay, c.BaseDelay)
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterEnabled && c.JitterFactor <= 0 {
		c.JitterFactor = d.JitterFactor
	}
	return c
}

// Validate checks 0 < BaseDelay ≤ MaxDelay, Multiplier ≥ 1 and
// JitterFactor ∈ [0, 1].
func (c BackoffConfig) Validate() error {
	switch {
	case c.Strategy < BackoffExponential || c.Strategy > BackoffFixed:
		return &ConfigError{Field: "backoff.strategy", Reason: "unknown strategy"}
	case c.BaseDelay <= 0:
		return &ConfigError{Field: "backoff.base_delay", Reason: "must be positive"}
	case c.MaxDelay < c.BaseDelay:
		return &ConfigError{Field: "backoff.max_delay", Reason: "must be at least base_delay"}
	case c.Multiplier < 1:
		return &ConfigError{Field: "backoff.multiplier", Reason: "must be at least 1"}
	case c.JitterFactor < 0 || c.JitterFactor > 1:
		return &ConfigError{Field: "backoff.jitter_factor", Reason: "must be between 0 and 1"}
	}
	return nil
}

// JitterSource yields uniform values in [0, 1).
type JitterSource interface {
	Float64() float64
}

type globalJitter struct{}

// #nosec G404 -- jitter is non-cryptographic timing variance.
func (globalJitter) Float64() float64 { return rand.Float64() }

type lockedJitter struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedJitter) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// NewJitterSource returns a deterministic source for the given seed. It is
// safe for concurrent use.
func NewJitterSource(seed uint64) JitterSource {
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return &lockedJitter{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// CalculateDelay returns the delay to wait after the given attempt (1-based)
// fails. A nil src uses the process-wide random source.
func CalculateDelay(attempt int, config BackoffConfig, src JitterSource) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(config.BaseDelay)
	maxDelay := float64(config.MaxDelay)

	var d float64
	switch config.Strategy {
	case BackoffFixed:
		d = base
	case BackoffLinear:
		d = math.Min(base*float64(attempt), maxDelay)
	default:
		d = math.Min(base*math.Pow(config.Multiplier, float64(attempt-1)), maxDelay)
	}

	if config.JitterEnabled && config.JitterFactor > 0 && d > 0 {
		if src == nil {
			src = globalJitter{}
		}
		d += (src.Float64() - 0.5) * d * config.JitterFactor
		if d < 0 {
			d = 0
		}
	}

	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
