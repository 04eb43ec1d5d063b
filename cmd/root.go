package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute runs the billingd command tree.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the billingd command tree. Configuration is read from the
// environment (and ./.env) by each subcommand, so help works without it.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "billingd",
		Short:         "Subscription billing service",
		Long:          "billingd runs the billing HTTP API, applies its database migrations, enforces plan quotas, inspects the plan catalog and manages checkout rate limits.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEnforceCmd(),
		newCheckoutLimitCmd(),
		newPlansCmd(),
		newTokenCmd(),
	)

	return rootCmd
}
