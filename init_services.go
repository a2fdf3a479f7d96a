package main

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/akinalp/agora/config"
	"github.com/akinalp/agora/pkg/ratelimit"
	"github.com/akinalp/agora/repository"
	"github.com/akinalp/agora/services"
	"github.com/akinalp/agora/ws"
)

// Services holds every service instance.
type Services struct {
	Auth         services.AuthService
	Ledger       services.LedgerWriter
	Notification services.NotificationService
	Reputation   services.ReputationService
	Membership   services.MembershipService
	Forum        services.ForumService
	Broadcast    services.BroadcastService
}

// RateLimiters holds the limiters that own background goroutines.
type RateLimiters struct {
	Handshake *ratelimit.WindowLimiter
	Comment   *ratelimit.CooldownLimiter
}

func initRateLimiters(cfg *config.Config) *RateLimiters {
	return &RateLimiters{
		Handshake: ratelimit.NewWindowLimiter(cfg.Realtime.HandshakeLimit, cfg.Realtime.HandshakeWindowDuration()),
		Comment: ratelimit.NewCooldownLimiter(
			cfg.Forum.CommentLimit,
			cfg.Forum.CommentWindowDuration(),
			cfg.Forum.CommentCooldownDuration(),
		),
	}
}

// Close stops every limiter's cleanup loop.
func (l *RateLimiters) Close() {
	l.Handshake.Close()
	l.Comment.Close()
}

// initServices builds the services. The ledger comes first: membership and
// forum write through it.
func initServices(
	db *sql.DB,
	repos *Repositories,
	hub *ws.Hub,
	limiters *RateLimiters,
	cfg *config.Config,
	logger *zap.Logger,
) *Services {
	stores := repository.StoreFactory(repository.NewSQLiteStore)

	ledger := services.NewLedgerWriter(stores, hub, logger,
		services.WithDedupWindow(cfg.Ledger.DedupWindowDuration()),
	)

	return &Services{
		Auth:         services.NewAuthService(repos.User, cfg.JWT.Secret, cfg.JWT.AccessTokenTTL()),
		Ledger:       ledger,
		Notification: services.NewNotificationService(db, stores, hub, logger),
		Reputation:   services.NewReputationService(repos.Reputation, repos.User, logger),
		Membership:   services.NewMembershipService(db, stores, ledger, hub, logger),
		Forum:        services.NewForumService(db, stores, ledger, limiters.Comment, hub, logger),
		Broadcast:    services.NewBroadcastService(db, stores, hub, logger),
	}
}
