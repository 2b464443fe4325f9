package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
)

type contextKey string

// BearerToken rejects requests whose Authorization header does not carry token.
// An empty token disables the check.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			presented, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				api.HandleError(w, domain.ErrInvalidAPIToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
