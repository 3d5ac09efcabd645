package secret

import "errors"

var (
	// ErrMissingEnv is returned when a ${VAR} reference names an unset
	// variable.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrUnknownProvider is returned for references to an unregistered
	// provider.
	ErrUnknownProvider = errors.New("secret: provider not registered")

	// ErrEmptySecret is returned by strict resolvers when a provider yields
	// an empty value.
	ErrEmptySecret = errors.New("secret: empty value")

	// ErrInvalidRef is returned for malformed references.
	ErrInvalidRef = errors.New("secret: invalid reference")
)
