package main

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/akinalp/agora/config"
	"github.com/akinalp/agora/handlers"
	"github.com/akinalp/agora/ws"
)

// Handlers holds every HTTP handler.
type Handlers struct {
	Health       *handlers.HealthHandler
	Notification *handlers.NotificationHandler
	Reputation   *handlers.ReputationHandler
	Community    *handlers.CommunityHandler
	Forum        *handlers.ForumHandler
	Admin        *handlers.AdminHandler
	WS           *ws.Handler
}

func initHandlers(
	db *sql.DB,
	svcs *Services,
	limiters *RateLimiters,
	hub *ws.Hub,
	cfg *config.Config,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		Health:       handlers.NewHealthHandler(db),
		Notification: handlers.NewNotificationHandler(svcs.Notification),
		Reputation:   handlers.NewReputationHandler(svcs.Reputation),
		Community:    handlers.NewCommunityHandler(svcs.Membership),
		Forum:        handlers.NewForumHandler(svcs.Forum),
		Admin:        handlers.NewAdminHandler(svcs.Broadcast),
		WS:           ws.NewHandler(hub, svcs.Auth, limiters.Handshake, cfg.Server.AllowedOrigins, logger),
	}
}
