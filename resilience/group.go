package resilience

import (
	"sort"
	"sync"
)

// BreakerGroup owns one circuit breaker per target name, all built from the
// same configuration.
type BreakerGroup struct {
	config CircuitBreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerGroup creates an empty group.
func NewBreakerGroup(config CircuitBreakerConfig) *BreakerGroup {
	return &BreakerGroup{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (g *BreakerGroup) Get(name string) *CircuitBreaker {
	g.mu.RLock()
	cb, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, g.config)
	g.breakers[name] = cb
	return cb
}

// Lookup returns the breaker for name if it exists.
func (g *BreakerGroup) Lookup(name string) (*CircuitBreaker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cb, ok := g.breakers[name]
	return cb, ok
}

// Names returns the sorted names of all breakers.
func (g *BreakerGroup) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.breakers))
	for name := range g.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns the state of every breaker keyed by name.
func (g *BreakerGroup) Snapshots() map[string]BreakerSnapshot {
	g.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.RUnlock()

	out := make(map[string]BreakerSnapshot, len(breakers))
	for _, cb := range breakers {
		out[cb.Name()] = cb.Snapshot()
	}
	return out
}
