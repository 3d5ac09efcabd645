package config

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/storageops/resilience"
)

var (
	// ErrNoBackends is returned when neither the file nor the environment
	// configures a backend.
	ErrNoBackends = errors.New("config: no storage backends configured")

	// ErrReadFile is returned when the configuration file cannot be read or
	// parsed.
	ErrReadFile = errors.New("config: cannot load configuration file")
)

func invalid(field, format string, args ...any) error {
	return &resilience.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
