package cli

import (
	"fmt"
	"time"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"

	"github.com/spf13/cobra"
)

// NewTokenCmd prints a signed host token, handy for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		hostID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a host bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hostID == "" {
				return fmt.Errorf("--host is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret is empty; set it or JWT_SECRET: %w", auth.ErrNoSecret)
			}
			tok, err := auth.NewVerifier(cfg.Auth.JWTSecret).Sign(hostID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&hostID, "host", "", "host user id placed in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
