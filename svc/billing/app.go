package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingcore/pkg/httpserver"
	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/pg"
	"github.com/dmitrymomot/billingcore/pkg/ratelimiter"
	"github.com/dmitrymomot/billingcore/pkg/redis"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// Deps are the process-level resources the billing service is built on.
// Pool is required for the postgres store; Redis is optional and enables the
// verification cache and the sweep lease.
type Deps struct {
	Config      Config
	Tokens      *jwt.Service
	Provider    subscription.BillingProvider
	Pool        *pgxpool.Pool
	Redis       goredis.UniversalClient
	RedisPrefix string
	Log         *slog.Logger
}

// App is the wired billing service.
type App struct {
	Service subscription.Service
	Router  http.Handler
	Sweeper *Sweeper // nil when no schedule is configured
	Metrics *Metrics
}

// NewApp wires catalog, stores, core service, metrics and HTTP router.
func NewApp(ctx context.Context, d Deps) (*App, error) {
	if d.Provider == nil {
		panic("billing: BillingProvider is required")
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	catalog, err := d.Config.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	profiles, resources, err := openStores(d)
	if err != nil {
		return nil, err
	}

	var checks []httpserver.Check
	if d.Pool != nil && d.Config.Store == StorePostgres {
		checks = append(checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(d.Pool)})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(registry)

	opts := []subscription.ServiceOption{
		subscription.WithLogger(log),
		subscription.WithTimeout(d.Config.RequestTimeout),
		subscription.WithObserver(metrics),
	}

	var (
		locker Locker
		limits ratelimiter.Store
	)
	if d.Redis != nil {
		kv := redis.NewStorage(d.Redis, d.RedisPrefix)
		locker = kv
		limits = ratelimiter.NewRedisStore(d.Redis, d.RedisPrefix)
		opts = append(opts, subscription.WithSessionCache(NewSessionCache(kv, d.Config.VerifyCacheTTL, log)))
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(d.Redis)})
	}

	svc := subscription.NewService(catalog, d.Provider, profiles, resources, opts...)

	app := &App{Service: svc, Metrics: metrics}
	if d.Config.SweepSchedule != "" {
		app.Sweeper, err = NewSweeper(svc, d.Config.SweepSchedule, locker, d.Config.SweepLockTTL, log)
		if err != nil {
			return nil, err
		}
	}

	if d.Tokens != nil {
		limit, err := checkoutLimit(ctx, d.Config, limits)
		if err != nil {
			return nil, err
		}
		app.Router = NewRouter(RouterDeps{
			Handlers:      NewHandlers(svc, d.Config, log),
			Tokens:        d.Tokens,
			Metrics:       metrics,
			Checks:        checks,
			CheckoutLimit: limit,
			Log:           log,
		})
	}
	return app, nil
}

// checkoutLimit builds the per-tenant checkout throttle. Without a shared
// store the buckets live in process until ctx is done.
func checkoutLimit(ctx context.Context, cfg Config, store ratelimiter.Store) (*ratelimiter.Bucket, error) {
	if cfg.CheckoutBurst <= 0 {
		return nil, nil
	}
	if store == nil {
		mem := ratelimiter.NewMemoryStore()
		context.AfterFunc(ctx, mem.Close)
		store = mem
	}
	return ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       cfg.CheckoutBurst,
		RefillRate:     1,
		RefillInterval: cfg.CheckoutRefill,
	})
}

func openStores(d Deps) (subscription.ProfileStore, subscription.ResourceStore, error) {
	switch d.Config.Store {
	case StorePostgres:
		if d.Pool == nil {
			return nil, nil, fmt.Errorf("%w: postgres store needs a connection pool", ErrUnknownStore)
		}
		store := NewPostgresStore(d.Pool)
		return store, store, nil
	case StoreMemory:
		store := subscription.NewMemoryStore()
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStore, d.Config.Store)
	}
}

// Quota is the provider-free part of the service: catalog, stores and quota
// enforcement. Operator tooling uses it without payment credentials.
type Quota struct {
	Catalog  *subscription.Catalog
	Profiles subscription.ProfileStore
	Enforcer *subscription.Enforcer
}

// NewQuota builds the catalog, stores and enforcer from d. Provider, Tokens
// and Redis are ignored.
func NewQuota(ctx context.Context, d Deps) (*Quota, error) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	catalog, err := d.Config.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	profiles, resources, err := openStores(d)
	if err != nil {
		return nil, err
	}
	return &Quota{
		Catalog:  catalog,
		Profiles: profiles,
		Enforcer: subscription.NewEnforcer(catalog, resources,
			subscription.WithEnforcerLogger(log),
			subscription.WithEnforcerTimeout(d.Config.RequestTimeout),
		),
	}, nil
}

// EnforceTenant enforces the tenant's current plan and returns it with the
// number of archived resources. A tenant without a profile is on the free plan.
func (q *Quota) EnforceTenant(ctx context.Context, tenantID uuid.UUID) (subscription.PlanID, int, error) {
	planID := q.Catalog.Free().ID
	p, err := q.Profiles.Get(ctx, tenantID)
	switch {
	case err == nil:
		planID = p.PlanID
	case !errors.Is(err, subscription.ErrProfileNotFound):
		return "", 0, err
	}
	n, err := q.Enforcer.Enforce(ctx, tenantID, planID)
	return planID, n, err
}

// EnforceAll enforces every stored profile.
func (q *Quota) EnforceAll(ctx context.Context) (subscription.EnforceReport, error) {
	return q.Enforcer.EnforceAll(ctx, q.Profiles)
}
