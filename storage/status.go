package storage

import (
	"slices"
	"time"

	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
)

// BreakerStatus is the circuit breaker part of a strategy report.
type BreakerStatus struct {
	State        string     `json:"state"`
	FailureCount int        `json:"failureCount"`
	SuccessCount int        `json:"successCount"`
	LastFailure  *time.Time `json:"lastFailure"`
}

// StrategyStatus reports one backend.
type StrategyStatus struct {
	ID                string        `json:"id"`
	Type              string        `json:"type"`
	Health            health.Status `json:"health"`
	ResponseTime      int64         `json:"responseTime"`
	SuccessRate       float64       `json:"successRate"`
	AvailableCapacity int64         `json:"availableCapacity"`
	TotalCapacity     int64         `json:"totalCapacity"`
	LastChecked       *time.Time    `json:"lastChecked"`
	LastError         string        `json:"lastError,omitempty"`
	Eligible          bool          `json:"eligible"`
	CircuitBreaker    BreakerStatus `json:"circuitBreaker"`
}

// StatusReport is the routing status of every backend in priority order.
type StatusReport struct {
	Status     health.Status    `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
	Priority   []string         `json:"priority"`
	Strategies []StrategyStatus `json:"strategies"`
}

const breakerDisabled = "disabled"

// AllStrategyHealth returns one report per backend. Backends in the
// priority list come first, in order, followed by the rest in ID order.
func (r *Router) AllStrategyHealth() []StrategyStatus {
	ids := r.reportOrder()
	out := make([]StrategyStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.strategyStatus(id))
	}
	return out
}

// Status returns the overall routing status: healthy when every backend is
// healthy with a closed breaker, unhealthy when no backend is eligible,
// degraded otherwise.
func (r *Router) Status() StatusReport {
	strategies := r.AllStrategyHealth()
	priority := r.Priority()
	inPriority := make(map[string]bool, len(priority))
	for _, id := range priority {
		inPriority[id] = true
	}

	healthy, eligible := 0, 0
	for _, s := range strategies {
		if !inPriority[s.ID] {
			continue
		}
		if s.Eligible {
			eligible++
		}
		closed := s.CircuitBreaker.State == resilience.StateClosed.String() || s.CircuitBreaker.State == breakerDisabled
		if s.Health == health.StatusHealthy && closed {
			healthy++
		}
	}

	overall := health.StatusDegraded
	switch {
	case eligible == 0:
		overall = health.StatusUnhealthy
	case healthy == len(priority):
		overall = health.StatusHealthy
	}

	return StatusReport{
		Status:     overall,
		Timestamp:  r.clock.Now().UTC(),
		Priority:   priority,
		Strategies: strategies,
	}
}

func (r *Router) reportOrder() []string {
	ids := r.Priority()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	var rest []string
	for id := range r.backends {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	return append(ids, rest...)
}

func (r *Router) strategyStatus(id string) StrategyStatus {
	b := r.backends[id]
	s := StrategyStatus{
		ID:             id,
		Type:           b.Kind(),
		Health:         health.StatusUnknown,
		CircuitBreaker: BreakerStatus{State: breakerDisabled},
	}

	if r.monitor != nil {
		if h, ok := r.monitor.Health(id); ok {
			s.Health = h.Status
			s.ResponseTime = h.ResponseTime.Milliseconds()
			s.SuccessRate = h.SuccessRate
			s.AvailableCapacity = h.AvailableCapacity
			s.TotalCapacity = h.TotalCapacity
			s.LastError = h.LastError
			if !h.LastCheckedAt.IsZero() {
				t := h.LastCheckedAt.UTC()
				s.LastChecked = &t
			}
		}
	}

	available := true
	if cb := r.Breaker(id); cb != nil {
		snap := cb.Snapshot()
		s.CircuitBreaker = BreakerStatus{
			State:        snap.State.String(),
			FailureCount: snap.FailureCount,
			SuccessCount: snap.SuccessCount,
		}
		if !snap.LastFailure.IsZero() {
			t := snap.LastFailure.UTC()
			s.CircuitBreaker.LastFailure = &t
		}
		available = cb.Available()
	}
	s.Eligible = available && s.Health.Usable()
	return s
}
