package auth

import "errors"

var (
	// ErrMissingToken is returned when the request carries no Authorization header
	ErrMissingToken = errors.New("missing Authorization header")

	// ErrMalformedToken is returned when the header is not "Bearer <token>"
	ErrMalformedToken = errors.New("invalid Authorization header format, expected 'Bearer <token>'")

	// ErrInvalidToken is returned when the token does not match the shared secret
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrSecretNotConfigured is returned when no shared secret is set; every trigger is refused
	ErrSecretNotConfigured = errors.New("shared secret not configured")
)
