package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/dukalink-backend/pkg/auth/session"
)

var defaultCORSOrigins = []string{"http://localhost:3000"}

// CORS applies the storefront origin policy. No origins means local dev
// only. A "*" entry opens the API to any origin and disables credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	wildcard := slices.Contains(origins, "*")
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.HeaderName, idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{session.HeaderName, requestIDHeader, "Retry-After", "Idempotent-Replay"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}).Handler
}
