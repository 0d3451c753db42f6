package auth

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/api/respond"
)

// RequireSecret answers 401 without calling next unless the request carries the shared secret.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := CheckSecret(r, secret); err != nil {
				log.Warn().
					Err(err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Msg("unauthorized trigger")
				respond.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
