// Package resilience provides the failure-handling primitives used to route
// storage calls: backoff, retry, circuit breaking, attempt timeouts and
// bulkheads.
//
// Operations report a classified Outcome (success, transient failure or
// permanent failure) so each primitive knows whether to retry and whether a
// failure says anything about the target's health.
//
// # Patterns
//
//   - Backoff: CalculateDelay computes exponential, linear or fixed delays,
//     optionally jittered from a replaceable JitterSource.
//
//   - Retry: ExecuteWithRetry re-invokes an operation with backoff, bounding
//     each attempt by AttemptTimeout and the whole sequence by TotalTimeout.
//
//   - Circuit Breaker: stops calling a target after FailureThreshold
//     failures, fails fast while open, and lets a limited number of probe
//     calls through once OpenTimeout has passed.
//
//   - Bulkhead: limits concurrent calls to one target.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker("s3", resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    OpenTimeout:      30 * time.Second,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:    3,
//	    AttemptTimeout: 5 * time.Second,
//	    Backoff: resilience.BackoffConfig{
//	        BaseDelay:  100 * time.Millisecond,
//	        MaxDelay:   5 * time.Second,
//	        Multiplier: 2.0,
//	    },
//	})
//
//	data, err := resilience.ExecuteWithRetry(ctx, retry, cb,
//	    func(ctx context.Context) resilience.Outcome[[]byte] {
//	        return resilience.OutcomeOf(fetch(ctx))
//	    })
package resilience
