package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-dispatch/internal/auth"
	"github.com/spec-kit/ticket-dispatch/internal/config"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

func newTokenCommand() *cobra.Command {
	var (
		subject string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator JWT for the dispatch API",
		Long: `Issue a bearer token signed with AUTH_JWT_SECRET.

Roles: viewer (read), dispatcher (mutations and assignment), admin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			issued, raw, err := tm.GenerateToken(subject, domain.OperatorRole(role))
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			cmd.PrintErrf("role %s, expires %s\n", issued.Role, issued.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator identity recorded in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleDispatcher), "viewer, dispatcher or admin")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
