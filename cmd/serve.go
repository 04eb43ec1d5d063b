package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingcore/pkg/config"
	"github.com/dmitrymomot/billingcore/pkg/httpserver"
	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/logger"
	"github.com/dmitrymomot/billingcore/pkg/pg"
	"github.com/dmitrymomot/billingcore/svc/billing"
	"github.com/dmitrymomot/billingcore/svc/billing/migrations"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the billing HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")

	return cmd
}

func runServe(cmd *cobra.Command, migrate bool) error {
	ctx := cmd.Context()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if migrate && rt.pool != nil {
		if err := pg.Migrate(ctx, rt.pool, migrations.FS, rt.pgCfg, rt.log); err != nil {
			return err
		}
	}

	var jwtCfg jwt.Config
	if err := config.Load(&jwtCfg); err != nil {
		return fmt.Errorf("jwt config: %w", err)
	}
	tokens, err := jwt.NewFromConfig(jwtCfg)
	if err != nil {
		return err
	}

	app, err := rt.app(ctx, billing.Deps{Tokens: tokens})
	if err != nil {
		return err
	}

	if app.Sweeper != nil {
		if err := app.Sweeper.Start(ctx); err != nil {
			return err
		}
	}

	var srvCfg httpserver.Config
	if err := config.Load(&srvCfg); err != nil {
		return fmt.Errorf("http server config: %w", err)
	}
	srv := httpserver.NewFromConfig(srvCfg,
		httpserver.WithLogger(rt.log),
		httpserver.WithStartHook(func(addr net.Addr) {
			rt.log.InfoContext(ctx, "Billing API ready",
				logger.Component("billingd"),
				"addr", addr.String(),
				"provider", rt.cfg.Provider,
				"store", rt.cfg.Store,
			)
		}),
	)
	return srv.Run(ctx, app.Router)
}
