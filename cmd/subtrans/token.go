package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/lingotube/backend/config"
	"github.com/upb/lingotube/backend/middleware"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cmd.Context())
			if !cfg.Auth.Enabled() {
				return errors.New("JWT_SECRET is not set")
			}
			if subject == "" {
				return errors.New("--subject is required")
			}

			token, err := middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Sign(subject, roles, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant, e.g. admin (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
