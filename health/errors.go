package health

import "errors"

var (
	// ErrProbeFailed indicates a probe reported failure without a cause.
	ErrProbeFailed = errors.New("health: probe failed")

	// ErrBackendNotFound indicates no prober is registered under an ID.
	ErrBackendNotFound = errors.New("health: backend not found")

	// ErrDuplicateBackend indicates a prober ID was registered twice.
	ErrDuplicateBackend = errors.New("health: backend already registered")

	// ErrNoBackends indicates no probers are registered.
	ErrNoBackends = errors.New("health: no backends registered")

	// ErrUnknownStatus indicates an unrecognized status name.
	ErrUnknownStatus = errors.New("health: unknown status")
)
