// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const userKey ctxKey = "user"

// Authenticator resolves a bearer token to a login.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

var publicPaths = map[string]bool{
	"/api/register": true,
	"/api/login":    true,
	"/health":       true,
}

// BearerAuth is a middleware that enforces token authentication.
//
// The token is read from the "Authorization: Bearer" header, or from the
// access_token query parameter for websocket upgrades where clients cannot
// set headers. Registration, login and health checks are public.
//
// On success the login is stored in the request context and can be read
// downstream with GetUserIDFromContext.
func BearerAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := BearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			login, err := auth.Authenticate(r.Context(), token)
			if err != nil || login == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, login)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token the request carries, or "" if none.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// GetUserIDFromContext extracts the authenticated login from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// WithUserID returns a copy of ctx carrying login, as BearerAuth would set it.
func WithUserID(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, userKey, login)
}
