// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// UserResolver resolves a bearer token to an active user.
type UserResolver interface {
	CurrentUser(ctx context.Context, token string) (*models.User, error)
}

// errorJSON writes an error response in the {"detail": ...} shape the
// API uses everywhere.
func errorJSON(w http.ResponseWriter, detail string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// Auth is a middleware that enforces bearer token authentication.
//
// It extracts the token from the Authorization header, resolves it to
// an active user and stores the user in the request context for
// downstream handlers. Requests without a valid token get 401;
// disabled accounts get 403.
func Auth(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				errorJSON(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			user, err := resolver.CurrentUser(r.Context(), token)
			if err != nil {
				if errors.Is(err, common.ErrInactiveUser) {
					errorJSON(w, "inactive user", http.StatusForbidden)
					return
				}
				errorJSON(w, "could not validate credentials", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// AdminOnly rejects requests whose context user is not an
// administrator. It must be used after Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		if user == nil {
			errorJSON(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if !user.IsAdmin() {
			errorJSON(w, "admin privileges required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUserFromContext extracts the authenticated user from the request
// context. Returns nil if not found.
func GetUserFromContext(ctx context.Context) *models.User {
	val := ctx.Value(userKey)
	if u, ok := val.(*models.User); ok {
		return u
	}
	return nil
}
