package storage

import (
	"context"

	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
)

// Backend is one storage target the router can delegate to.
//
// Call performs exactly one attempt and classifies its own failure: a
// transient outcome may be retried or failed over, a permanent one stops
// routing. Probe feeds the health monitor and must be safe to call
// concurrently with Call.
type Backend interface {
	ID() string
	Kind() string
	Probe(ctx context.Context) health.ProbeResult
	Call(ctx context.Context, op Operation) resilience.Outcome[Result]
}

var _ health.Prober = Backend(nil)
