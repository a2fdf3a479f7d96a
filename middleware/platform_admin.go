package middleware

import (
	"net/http"

	"github.com/akinalp/agora/handlers"
	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
)

// PlatformAdminMiddleware runs after AuthMiddleware and lets only platform
// admins through:
//
//	authMw.Require(platformAdminMw.Require(http.HandlerFunc(adminHandler.Broadcast)))
type PlatformAdminMiddleware struct{}

func NewPlatformAdminMiddleware() *PlatformAdminMiddleware {
	return &PlatformAdminMiddleware{}
}

func (m *PlatformAdminMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(handlers.UserContextKey).(*models.User)
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
			return
		}

		if !user.IsPlatformAdmin() {
			pkg.ErrorWithMessage(w, http.StatusForbidden, "platform admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
