package resilience

import (
	"context"
	"time"
)

// Middleware wraps an Operation with cross-cutting behavior. Wrapping is
// explicit at the call site so the instrumentation boundary stays visible.
type Middleware[T any] func(Operation[T]) Operation[T]

// Chain wraps op with mws. The first middleware is the outermost:
//
//	Chain(op, a, b) == a(b(op))
func Chain[T any](op Operation[T], mws ...Middleware[T]) Operation[T] {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			op = mws[i](op)
		}
	}
	return op
}

// Limit admits the operation through b. A full bulkhead is a transient
// failure so the caller may retry or fail over.
func Limit[T any](b *Bulkhead) Middleware[T] {
	return func(next Operation[T]) Operation[T] {
		if b == nil {
			return next
		}
		return func(ctx context.Context) Outcome[T] {
			release, err := b.Acquire(ctx)
			if err != nil {
				return TransientFailure[T](err)
			}
			defer release()
			return next(ctx)
		}
	}
}

// Timeout bounds each invocation of the operation by d.
func Timeout[T any](d time.Duration) Middleware[T] {
	return func(next Operation[T]) Operation[T] {
		return func(ctx context.Context) Outcome[T] {
			return RunWithTimeout(ctx, d, next)
		}
	}
}
