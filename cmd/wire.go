package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingcore/pkg/config"
	"github.com/dmitrymomot/billingcore/pkg/logger"
	"github.com/dmitrymomot/billingcore/pkg/pg"
	"github.com/dmitrymomot/billingcore/pkg/redis"
	"github.com/dmitrymomot/billingcore/pkg/requestid"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
	"github.com/dmitrymomot/billingcore/svc/billing"
)

// runtime holds the resources opened for one command invocation.
type runtime struct {
	cfg   billing.Config
	log   *slog.Logger
	pgCfg pg.Config
	pool  *pgxpool.Pool
	redis *goredis.Client
	rcfg  redis.Config
}

func newLogger() (*slog.Logger, error) {
	var cfg logger.Config
	if err := config.Load(&cfg); err != nil {
		return nil, fmt.Errorf("logger config: %w", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, logger.WithContextExtractors(
		requestid.LoggerExtractor(),
		subscription.LoggerExtractor(),
	))
	log := logger.New(opts...)
	logger.SetAsDefault(log)
	return log, nil
}

// openRuntime loads configuration and opens the stores the configuration
// asks for. Callers must call close.
func openRuntime(ctx context.Context) (*runtime, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	rt := &runtime{log: log}
	if err := config.Load(&rt.cfg); err != nil {
		return nil, fmt.Errorf("billing config: %w", err)
	}

	if rt.cfg.Store == billing.StorePostgres {
		if err := rt.openPostgres(ctx); err != nil {
			return nil, err
		}
	}

	if rt.cfg.RedisEnabled {
		if err := config.Load(&rt.rcfg); err != nil {
			rt.close()
			return nil, fmt.Errorf("redis config: %w", err)
		}
		rt.redis, err = redis.Connect(ctx, rt.rcfg)
		if err != nil {
			rt.close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) openPostgres(ctx context.Context) error {
	if err := config.Load(&rt.pgCfg); err != nil {
		return fmt.Errorf("postgres config: %w", err)
	}
	pool, err := pg.Connect(ctx, rt.pgCfg)
	if err != nil {
		return err
	}
	rt.pool = pool
	return nil
}

func (rt *runtime) app(ctx context.Context, deps billing.Deps) (*billing.App, error) {
	provider, err := billing.NewProvider(rt.cfg.Provider)
	if err != nil {
		return nil, err
	}

	deps.Config = rt.cfg
	deps.Provider = provider
	deps.Pool = rt.pool
	deps.Log = rt.log
	if rt.redis != nil {
		deps.Redis = rt.redis
		deps.RedisPrefix = rt.rcfg.KeyPrefix
	}
	return billing.NewApp(ctx, deps)
}

// quota builds catalog, store and enforcer without a payment provider.
func (rt *runtime) quota(ctx context.Context) (*billing.Quota, error) {
	return billing.NewQuota(ctx, billing.Deps{Config: rt.cfg, Pool: rt.pool, Log: rt.log})
}

func (rt *runtime) checkoutLimit() (*billing.CheckoutLimit, error) {
	if rt.redis == nil {
		return billing.NewCheckoutLimit(rt.cfg, nil, "")
	}
	return billing.NewCheckoutLimit(rt.cfg, rt.redis, rt.rcfg.KeyPrefix)
}

func (rt *runtime) close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			rt.log.Error("Failed to close redis client", logger.Error(err))
		}
	}
}
