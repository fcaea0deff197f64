package middleware

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/serenify-conversations/internal/auth"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
)

// Caller attaches the gateway-asserted user id to the request context. When secret is
// set, the id must be backed by a signed X-Caller-Claims token whose subject matches.
// The caller's bearer token is kept for forwarding to the identity service.
func Caller(header string, secret []byte) func(http.Handler) http.Handler {
	if header == "" {
		header = auth.DefaultCallerHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			verified := false
			if len(secret) > 0 {
				if err := auth.VerifyCallerClaims(secret, r.Header.Get(auth.ClaimsHeader), userID); err != nil {
					logger.FromContext(r.Context()).WithError(err).Warn("Rejected caller claims")
					writeError(w, http.StatusUnauthorized, "Invalid caller credentials")
					return
				}
				verified = true
			}

			ctx := auth.WithCaller(r.Context(), auth.Caller{UserID: userID, Verified: verified})
			if token := identity.BearerToken(r.Header.Get("Authorization")); token != "" {
				ctx = identity.WithCredential(ctx, token)
			}
			ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithField("userId", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
