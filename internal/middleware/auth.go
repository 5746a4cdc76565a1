package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/beside/server/internal/auth"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/repo"
)

type contextKey string

const (
	userKey   contextKey = "user"
	userIDKey contextKey = "user_id"
)

// Auth validates bearer tokens, loads the user from the repo, and attaches
// both to the request context. Missing or invalid tokens get 401.
func Auth(jwtService *auth.JWTService, users repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := resolveBearer(r, jwtService, users)
			if !ok {
				respondUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// OptionalAuth attaches the user when a valid bearer token is present and
// passes the request through anonymously otherwise. Used by the public
// nearby endpoint so authenticated callers get self-exclusion.
func OptionalAuth(jwtService *auth.JWTService, users repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := resolveBearer(r, jwtService, users); ok {
				r = r.WithContext(withUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveBearer(r *http.Request, jwtService *auth.JWTService, users repo.UserRepo) (*model.User, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, false
	}

	claims, err := jwtService.VerifyToken(tokenString)
	if err != nil {
		return nil, false
	}

	user, err := users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		return nil, false
	}

	return &user, true
}

func withUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, userIDKey, user.ID)
}

// GetUser returns the user attached to the request context.
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "unauthorized",
	})
}
