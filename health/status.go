package health

import (
	"context"
	"fmt"
	"time"
)

// Status represents the health status of a backend.
type Status int

const (
	// StatusUnknown means no probe has completed yet.
	StatusUnknown Status = iota
	// StatusHealthy indicates the backend is functioning normally.
	StatusHealthy
	// StatusDegraded indicates the backend is functioning but with issues.
	StatusDegraded
	// StatusUnhealthy indicates the backend should not receive traffic.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*s = StatusUnknown
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "unhealthy":
		*s = StatusUnhealthy
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, text)
	}
	return nil
}

// Usable reports whether a backend in this status may be routed to.
func (s Status) Usable() bool { return s != StatusUnhealthy }

// ProbeResult is the outcome of one lightweight liveness check.
type ProbeResult struct {
	OK      bool
	Latency time.Duration
	Err     error

	// Capacity in bytes; zero when the backend does not report it.
	AvailableCapacity int64
	TotalCapacity     int64
}

// Prober is implemented by anything the monitor can check.
type Prober interface {
	// ID returns the backend identifier.
	ID() string

	// Probe performs a cheap liveness and latency check. It must honor ctx.
	Probe(ctx context.Context) ProbeResult
}

// ProberFunc is an adapter to allow ordinary functions to be used as Probers.
type ProberFunc struct {
	id string
	fn func(context.Context) ProbeResult
}

// NewProberFunc creates a new ProberFunc.
func NewProberFunc(id string, fn func(context.Context) ProbeResult) *ProberFunc {
	return &ProberFunc{id: id, fn: fn}
}

// ID returns the backend identifier.
func (f *ProberFunc) ID() string { return f.id }

// Probe runs the probe function.
func (f *ProberFunc) Probe(ctx context.Context) ProbeResult { return f.fn(ctx) }

// BackendHealth is the published health record of one backend.
type BackendHealth struct {
	BackendID           string        `json:"id"`
	Status              Status        `json:"status"`
	ResponseTime        time.Duration `json:"-"`
	SuccessRate         float64       `json:"successRate"`
	AvailableCapacity   int64         `json:"availableCapacity"`
	TotalCapacity       int64         `json:"totalCapacity"`
	LastCheckedAt       time.Time     `json:"lastChecked"`
	LastError           string        `json:"lastError,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Samples             int           `json:"samples"`
}

// Thresholds map a rolling success rate and latency to a Status.
type Thresholds struct {
	// UnhealthyBelow marks a backend unhealthy when its success rate drops
	// below it. Default: 0.5
	UnhealthyBelow float64

	// DegradedBelow marks a backend degraded when its success rate drops
	// below it. Default: 0.8
	DegradedBelow float64

	// SlowThreshold marks a backend degraded when its last probe took
	// longer. Zero disables the latency check.
	SlowThreshold time.Duration
}

// DefaultThresholds returns the thresholds used for zero fields.
func DefaultThresholds() Thresholds {
	return Thresholds{UnhealthyBelow: 0.5, DegradedBelow: 0.8}
}

// Classify derives a status from the rolling window. samples is the number
// of ticks in the window and lastOK is the outcome of the newest one.
func (t Thresholds) Classify(samples int, successRate float64, lastOK bool, latency time.Duration) Status {
	switch {
	case samples == 0:
		return StatusUnknown
	case successRate < t.UnhealthyBelow:
		return StatusUnhealthy
	case !lastOK, successRate < t.DegradedBelow:
		return StatusDegraded
	case t.SlowThreshold > 0 && latency > t.SlowThreshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Overall summarizes a set of backends: healthy when every backend is
// healthy, unhealthy when none is usable, degraded otherwise.
func Overall(all map[string]BackendHealth) Status {
	if len(all) == 0 {
		return StatusUnhealthy
	}
	healthy, usable := 0, 0
	for _, h := range all {
		if h.Status == StatusHealthy {
			healthy++
		}
		if h.Status.Usable() {
			usable++
		}
	}
	switch {
	case healthy == len(all):
		return StatusHealthy
	case usable == 0:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}
