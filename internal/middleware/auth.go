package middleware

import (
	"context"
	"net/http"
	"strings"
)

// TokenValidator validates a bearer token and returns the owning user id.
// Implemented by auth.Service.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (int64, error)
}

// BearerToken extracts the credential from the Authorization header or,
// failing that, the token query parameter (the WebSocket handshake cannot set
// headers from a browser).
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// RequireAuth rejects requests without a live bearer token and stores the
// user id in the request context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := validator.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
