package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
	"github.com/akinalp/agora/services"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return db.Close()
		},
	}
}

// newTokenCommand issues an access token for local development, signed with
// the configured secret.
func newTokenCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a development access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer db.Close()

			repos := initRepositories(db.Conn)
			auth := services.NewAuthService(repos.User, cfg.JWT.Secret, cfg.JWT.AccessTokenTTL())

			token, err := auth.IssueAccessToken(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to issue token for %s: %w", userID, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to issue the token for (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// newUserCommand manages the local account mirror. Accounts normally arrive
// from the authentication service; these commands cover development and
// operator cleanup.
func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create or delete users",
	}
	cmd.AddCommand(newUserCreateCommand(), newUserDeleteCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var username, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole := models.UserRole(role)
			if userRole != models.UserRoleUser && userRole != models.UserRoleAdmin {
				return fmt.Errorf("%w: role must be %q or %q", pkg.ErrBadRequest, models.UserRoleUser, models.UserRoleAdmin)
			}

			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer db.Close()

			repos := initRepositories(db.Conn)
			user := &models.User{Username: username, Role: userRole}
			if err := repos.User.Create(cmd.Context(), user); err != nil {
				return err
			}

			log.Info("user created",
				zap.String("user_id", user.ID),
				zap.String("username", user.Username),
				zap.String("role", string(user.Role)),
			)
			fmt.Fprintln(cmd.OutOrStdout(), user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username (required)")
	cmd.Flags().StringVar(&role, "role", string(models.UserRoleUser), "platform role: user or admin")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newUserDeleteCommand removes a user. Foreign keys take their
// notifications, ledger entries, posts and memberships with them.
func newUserDeleteCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a user and everything that belongs to them",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer db.Close()

			repos := initRepositories(db.Conn)
			if err := repos.User.Delete(cmd.Context(), userID); err != nil {
				return fmt.Errorf("failed to delete user %s: %w", userID, err)
			}

			log.Info("user deleted", zap.String("user_id", userID))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "id", "", "user id to delete (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newReputationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reputation",
		Short: "Reputation ledger maintenance",
	}
	cmd.AddCommand(newReputationVerifyCommand())
	return cmd
}

// newReputationVerifyCommand recomputes every total two ways and exits
// non-zero when any user's totals disagree.
func newReputationVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check reputation totals against a replay of the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer db.Close()

			repos := initRepositories(db.Conn)
			reputation := services.NewReputationService(repos.Reputation, repos.User, log)

			drift, err := reputation.VerifyTotals(cmd.Context())
			if err != nil {
				return err
			}
			if len(drift) == 0 {
				log.Info("reputation totals consistent")
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(drift); err != nil {
				return err
			}
			log.Warn("reputation drift found", zap.Int("users", len(drift)))
			return fmt.Errorf("%d users with inconsistent totals", len(drift))
		},
	}
}
