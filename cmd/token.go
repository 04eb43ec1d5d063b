package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingcore/pkg/config"
	"github.com/dmitrymomot/billingcore/pkg/jwt"
)

// newTokenCmd issues API tokens for local testing against the billing API.
func newTokenCmd() *cobra.Command {
	var (
		tenant string
		email  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a tenant API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id %q: %w", tenant, err)
			}

			var cfg jwt.Config
			if err := config.Load(&cfg); err != nil {
				return fmt.Errorf("jwt config: %w", err)
			}
			tokens, err := jwt.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(tenantID, email)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&email, "email", "", "Billing email embedded in the token")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
