package middleware

import (
	"net/http"

	"github.com/AnshRaj112/serenify-conversations/internal/auth"
	"github.com/go-chi/cors"
)

// CORS allows the configured origins. Preflight requests are answered without reaching
// the router.
func CORS(allowedOrigins []string, callerHeader string) func(http.Handler) http.Handler {
	headers := []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", auth.ClaimsHeader}
	if callerHeader != "" {
		headers = append(headers, callerHeader)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
