package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"simplepaes/internal/auth"
	"simplepaes/pkg/types"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token signed with the configured JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}

			user := types.UserRef{ID: args[0], DisplayName: name}
			if err := user.Validate(); err != nil {
				return err
			}
			token, err := auth.NewAuthenticator(cfg.Auth.JWTSecret).GenerateToken(user, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
