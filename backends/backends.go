package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/storageops/config"
	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
	"github.com/jonwraymond/storageops/storage"
)

// ErrUnknownKind is returned by New for an unsupported backend kind.
var ErrUnknownKind = errors.New("backends: unknown kind")

// New builds the adapter described by bc.
func New(ctx context.Context, bc config.BackendConfig) (storage.Backend, error) {
	switch bc.Kind {
	case config.KindLocal:
		return NewLocal(bc.ID, bc.Path)
	case config.KindS3, config.KindS3Emulator:
		return NewS3(ctx, bc)
	case config.KindAzure, config.KindAzurite:
		return NewAzure(bc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, bc.Kind)
	}
}

// NewAll builds every configured backend in order. It fails on the first
// adapter that cannot be built.
func NewAll(ctx context.Context, cfgs []config.BackendConfig) ([]storage.Backend, error) {
	out := make([]storage.Backend, 0, len(cfgs))
	for _, bc := range cfgs {
		b, err := New(ctx, bc)
		if err != nil {
			return nil, fmt.Errorf("backends: %s: %w", bc.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func succeeded(res storage.Result) resilience.Outcome[storage.Result] {
	return resilience.Succeeded(res)
}

func permanent(err error) resilience.Outcome[storage.Result] {
	return resilience.PermanentFailure[storage.Result](err)
}

func transient(err error) resilience.Outcome[storage.Result] {
	return resilience.TransientFailure[storage.Result](err)
}

func notFound(key string, cause error) resilience.Outcome[storage.Result] {
	if cause == nil {
		return permanent(fmt.Errorf("%w: %s", storage.ErrNotFound, key))
	}
	return permanent(fmt.Errorf("%w: %s: %w", storage.ErrNotFound, key, cause))
}

// permanentStatus reports whether an HTTP status means the request itself
// is wrong. 408 and 429 are worth retrying elsewhere.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 &&
		code != 408 && code != 429
}

// timedProbe runs check and reports its latency.
func timedProbe(ctx context.Context, check func(context.Context) error) health.ProbeResult {
	start := time.Now()
	err := check(ctx)
	return health.ProbeResult{OK: err == nil, Latency: time.Since(start), Err: err}
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
