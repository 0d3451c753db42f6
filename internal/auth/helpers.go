// Package auth guards the operator endpoints (job triggers, cache invalidation) with a
// shared-secret bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractBearer extracts the token from the Authorization header.
// Returns the token or an error if missing/invalid format
func ExtractBearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	// Expect "Bearer <token>" format
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrMalformedToken
	}

	return parts[1], nil
}

// CheckSecret validates the request's bearer token against secret in constant time.
// An empty secret rejects every request.
func CheckSecret(r *http.Request, secret string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}
	token, err := ExtractBearer(r)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
