package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rental-gate-api/internal/application/identity"
	"github.com/rental-gate-api/internal/domain"
)

type contextKey string

const SessionKey contextKey = "session"

// Auth returns middleware that resolves the Bearer token to a live access
// session and injects it into the request context.
func Auth(svc identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "INVALID_SESSION", "missing or invalid authorization header")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			sess, err := svc.RequireSession(r.Context(), token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "INVALID_SESSION", "invalid or expired session")
				return
			}
			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext extracts the authenticated session from the request context.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	return s, ok
}
