package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownBackend is returned when an ID names no registered backend.
	ErrUnknownBackend = errors.New("storage: unknown backend")

	// ErrNoBackends is returned when a router is built without backends.
	ErrNoBackends = errors.New("storage: no backends configured")

	// ErrAllBackendsExhausted is returned when every candidate failed or
	// none was eligible.
	ErrAllBackendsExhausted = errors.New("storage: all backends exhausted")

	// ErrInvalidOperation is returned for malformed operations. It is always
	// wrapped as a permanent failure.
	ErrInvalidOperation = errors.New("storage: invalid operation")

	// ErrNotFound is returned by backends when a key does not exist.
	ErrNotFound = errors.New("storage: object not found")
)

// BackendFailure is the terminal error of one attempted backend.
type BackendFailure struct {
	Backend string
	Err     error
}

// SkippedBackend is a backend the candidate filter left out, with the reason.
type SkippedBackend struct {
	Backend string `json:"id"`
	Reason  string `json:"reason"`
}

// Skip reasons.
const (
	SkipCircuitOpen = "circuit open"
	SkipUnhealthy   = "unhealthy"
)

// AllBackendsExhaustedError carries the per-backend causes in the order the
// backends were tried, plus the backends that were never eligible.
type AllBackendsExhaustedError struct {
	Op      string
	Causes  []BackendFailure
	Skipped []SkippedBackend
}

func (e *AllBackendsExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "storage: %s: all backends exhausted", e.Op)
	if len(e.Causes) == 0 && len(e.Skipped) == 0 {
		return b.String()
	}
	b.WriteString(" (")
	sep := ""
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "%s%s: %v", sep, c.Backend, c.Err)
		sep = "; "
	}
	for _, s := range e.Skipped {
		fmt.Fprintf(&b, "%s%s: skipped, %s", sep, s.Backend, s.Reason)
		sep = "; "
	}
	b.WriteString(")")
	return b.String()
}

// Is reports ErrAllBackendsExhausted.
func (e *AllBackendsExhaustedError) Is(target error) bool { return target == ErrAllBackendsExhausted }

// Unwrap returns the per-backend causes.
func (e *AllBackendsExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Causes))
	for _, c := range e.Causes {
		errs = append(errs, c.Err)
	}
	return errs
}
