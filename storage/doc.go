// Package storage routes storage operations across redundant backends.
//
// A Router holds an ordered list of Backends. For each call it filters out
// backends whose circuit breaker is open or whose health monitor reports
// them unhealthy, then tries the remaining candidates in order. Each
// candidate gets the full retry policy behind its own breaker. A transient
// terminal failure moves on to the next candidate while the fallback budget
// (1 + FallbackMaxRetries candidates) and FallbackTimeout allow; a
// permanent failure or caller cancellation ends routing at once.
//
// Backends classify their own failures by returning a resilience.Outcome:
// throttling, timeouts and 5xx responses are transient, bad requests and
// missing objects are permanent.
//
// # Basic Usage
//
//	router, err := storage.NewRouter(storage.DefaultConfig(), []storage.Backend{local, s3},
//	    storage.WithMonitor(mon),
//	    storage.WithMiddleware(mw),
//	)
//	if err != nil {
//	    return err
//	}
//
//	res, err := router.Execute(ctx, storage.Upload("docs/a.pdf", data, "application/pdf"))
//	if err != nil {
//	    var exhausted *storage.AllBackendsExhaustedError
//	    if errors.As(err, &exhausted) {
//	        // exhausted.Causes holds one error per attempted backend
//	    }
//	    return err
//	}
//	log.Printf("stored on %s", res.Backend)
//
// # Custom Calls
//
// Route accepts any per-backend call, which lets callers route typed
// operations the Operation struct does not cover:
//
//	out, err := storage.Route(ctx, router, "list", func(ctx context.Context, b storage.Backend) resilience.Outcome[[]string] {
//	    return listKeys(ctx, b)
//	})
//
// # Status
//
// Status reports every backend with its health, success rate, capacity and
// breaker state. StatusHandler serves it as JSON.
package storage
