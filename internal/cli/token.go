package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quiz-ranking-service/internal/config"
	transport "quiz-ranking-service/internal/transport/http"
)

// NewTokenCmd signs a bearer token for local testing against auth.jwtSecret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret not configured")
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			token, err := transport.NewAuthenticator(cfg.Auth.JWTSecret).IssueToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id placed in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
