package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingcore/pkg/pg"
	"github.com/dmitrymomot/billingcore/svc/billing/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the billing database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPostgres(cmd.Context(), func(rt *runtime) error {
					return pg.Migrate(cmd.Context(), rt.pool, migrations.FS, rt.pgCfg, rt.log)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPostgres(cmd.Context(), func(rt *runtime) error {
					return pg.Rollback(cmd.Context(), rt.pool, migrations.FS, rt.pgCfg, rt.log)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPostgres(cmd.Context(), func(rt *runtime) error {
					v, err := pg.Version(cmd.Context(), rt.pool, migrations.FS, rt.pgCfg, rt.log)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
					return err
				})
			},
		},
	)

	return cmd
}

// withPostgres opens only the database, whatever BILLING_STORE says.
func withPostgres(ctx context.Context, fn func(rt *runtime) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	rt := &runtime{log: log}
	if err := rt.openPostgres(ctx); err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}
