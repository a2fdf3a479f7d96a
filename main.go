// Package main is the agora server: forum event notifications, reputation
// and community membership behind a JSON API and a websocket hub.
//
// The serve command wires the layers in order:
//
//	config → logger → database → repositories → hub → services
//	       → hub callbacks → handlers → middleware + routes → HTTP server
//
// There are no globals; everything is built in runServe and passed down.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akinalp/agora/config"
	"github.com/akinalp/agora/database"
	"github.com/akinalp/agora/middleware"
	"github.com/akinalp/agora/pkg/logger"
	"github.com/akinalp/agora/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agora",
		Short:         "Forum notification and reputation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newReputationCommand())
	cmd.AddCommand(newUserCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

// bootstrap loads config, builds the logger and opens the migrated database.
// Every command starts here.
func bootstrap() (*config.Config, *zap.Logger, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.New(cfg.Database.Path, database.Migrations(), log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, log, db, nil
}

func runServe(ctx context.Context) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer db.Close()

	log.Info("agora starting", zap.String("addr", cfg.Server.Addr()))

	repos := initRepositories(db.Conn)
	hub := ws.NewHub(log)
	limiters := initRateLimiters(cfg)
	defer limiters.Close()

	svcs := initServices(db.Conn, repos, hub, limiters, cfg, log)
	registerHubCallbacks(hub, svcs.Notification, log)
	h := initHandlers(db.Conn, svcs, limiters, hub, cfg, log)

	authMw := middleware.NewAuthMiddleware(svcs.Auth, repos.User)

	mux := http.NewServeMux()
	initRoutes(mux, h, authMw)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Websocket sessions are hijacked, so Shutdown does not wait for
		// them; closing the hub ends their pumps.
		hub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("agora stopped")
	return nil
}
