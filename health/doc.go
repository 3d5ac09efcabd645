// Package health tracks the availability of storage backends.
//
// A Monitor probes every registered Prober on a fixed interval, all
// backends concurrently, and keeps a rolling success rate per backend. After
// each tick it publishes an immutable snapshot of BackendHealth records that
// the router reads without locking.
//
// # Status
//
// A backend starts as StatusUnknown. After each tick it is classified by
// Thresholds: unhealthy when its success rate falls below UnhealthyBelow,
// degraded when the last probe failed, the rate falls below DegradedBelow or
// the probe was slower than SlowThreshold, healthy otherwise.
//
// # Basic Usage
//
//	mon := health.NewMonitor(health.MonitorConfig{
//	    Interval: 30 * time.Second,
//	    Timeout:  5 * time.Second,
//	})
//	_ = mon.Register(localBackend)
//	mon.Start(ctx)
//	defer mon.Stop()
//
//	if h, ok := mon.Health("local"); ok && h.Status.Usable() {
//	    // route to it
//	}
//
// # HTTP Endpoints
//
//	http.Handle("/healthz", health.LivenessHandler())
//	http.Handle("/readyz", health.ReadinessHandler(mon))
//	http.Handle("/health", health.DetailedHandler(mon))
package health
