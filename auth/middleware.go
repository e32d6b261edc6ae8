package auth

import (
	"chat-relay/domain"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const subjectKey contextKey = "subject"

// Middleware attaches the subject of a valid token to the request context.
// The token is read from the Authorization header, or from the token query
// parameter since browsers cannot set headers on a websocket upgrade.
// Without required, requests with no token go through anonymously. A token
// that is present but invalid is always rejected.
func Middleware(issuer TokenIssuer, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				if required {
					http.Error(w, "authorization token is missing", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			claims, err := issuer.ValidateToken(token)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey, domain.UserIdentity(claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated identity, empty when anonymous.
func SubjectFromContext(ctx context.Context) domain.UserIdentity {
	subject, _ := ctx.Value(subjectKey).(domain.UserIdentity)
	return subject
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
