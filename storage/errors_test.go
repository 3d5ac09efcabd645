package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/jonwraymond/storageops/resilience"
)

func TestAllBackendsExhaustedError(t *testing.T) {
	open := &resilience.CircuitOpenError{Breaker: "b"}
	err := &AllBackendsExhaustedError{
		Op: "upload",
		Causes: []BackendFailure{
			{Backend: "a", Err: errUnavailable},
			{Backend: "b", Err: open},
		},
		Skipped: []SkippedBackend{{Backend: "c", Reason: SkipUnhealthy}},
	}

	if !errors.Is(err, ErrAllBackendsExhausted) {
		t.Error("errors.Is(err, ErrAllBackendsExhausted) = false")
	}
	if !errors.Is(err, errUnavailable) {
		t.Error("errors.Is(err, cause) = false")
	}
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Error("errors.Is(err, ErrCircuitOpen) = false")
	}

	msg := err.Error()
	for _, want := range []string{"upload", "a: service unavailable", "c: skipped, unhealthy"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if strings.Index(msg, "a:") > strings.Index(msg, "b:") {
		t.Errorf("Error() = %q, causes out of order", msg)
	}
}

func TestAllBackendsExhaustedError_Empty(t *testing.T) {
	err := &AllBackendsExhaustedError{Op: "exists"}
	if got, want := err.Error(), "storage: exists: all backends exhausted"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
