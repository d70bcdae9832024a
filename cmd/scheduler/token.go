package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/service"
	"github.com/noah-isme/defense-scheduler/pkg/config"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for the HTTP API using JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, expires, err := service.NewTokenService(cfg.JWT).Issue(userID, models.UserRole(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "subject user id")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "role claim: SUPERADMIN, ADMIN or INSTRUCTOR")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
