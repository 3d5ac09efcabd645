package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunWithTimeout runs op with a deadline of timeout (none when timeout <= 0).
//
// The operation runs in its own goroutine so an implementation that ignores
// its context still cannot hold the caller past the deadline. A missed
// deadline is reported as a transient failure wrapping ErrTimeout; if the
// parent context ended first the failure wraps the parent's error instead.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, op Operation[T]) Outcome[T] {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Outcome[T], 1)
	go func() {
		done <- op(attemptCtx).Normalized()
	}()

	select {
	case out := <-done:
		// The op may have surfaced the deadline itself.
		if out.Kind == OutcomeTransient && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return TransientFailure[T](fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, out.Err))
		}
		return out
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return TransientFailure[T](err)
		}
		return TransientFailure[T](fmt.Errorf("%w after %s", ErrTimeout, timeout))
	}
}
