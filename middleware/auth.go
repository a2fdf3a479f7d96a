// Package middleware holds the HTTP request pipeline stages that run before a
// handler. Each is a func(next http.Handler) http.Handler: it either handles
// the request itself (usually with an error) or calls next.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/akinalp/agora/handlers"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/pkg/cache"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/services"
)

const (
	userCacheTTL      = 30 * time.Second
	userCacheCapacity = 10_000
)

// AuthMiddleware validates the access token and loads the caller. A burst of
// requests from one client costs one users-table lookup per userCacheTTL.
type AuthMiddleware struct {
	authService services.AuthService
	users       *cache.Cache[string, models.User]
}

func NewAuthMiddleware(authService services.AuthService, userRepo repository.UserRepository) *AuthMiddleware {
	load := func(ctx context.Context, id string) (models.User, error) {
		user, err := userRepo.GetByID(ctx, id)
		if err != nil {
			return models.User{}, err
		}
		return *user, nil
	}
	return &AuthMiddleware{
		authService: authService,
		users:       cache.New[string, models.User](userCacheTTL, userCacheCapacity, load),
	}
}

// Require rejects requests without a valid "Authorization: Bearer <token>"
// with 401 and otherwise puts the *models.User under handlers.UserContextKey.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.authService.ValidateAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			pkg.Error(w, err)
			return
		}

		// the token can outlive the account
		user, err := m.users.Get(r.Context(), claims.UserID)
		if errors.Is(err, pkg.ErrNotFound) {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found")
			return
		}
		if err != nil {
			pkg.Error(w, err)
			return
		}

		// handlers get their own copy, never the cached value
		ctx := context.WithValue(r.Context(), handlers.UserContextKey, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
