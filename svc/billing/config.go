package billing

import (
	"context"
	"time"

	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// Provider names accepted by BILLING_PROVIDER.
const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)

// Store names accepted by BILLING_STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the billing service configuration.
type Config struct {
	AppURL         string        `env:"APP_URL" envDefault:"http://localhost:8080"`
	Provider       string        `env:"BILLING_PROVIDER" envDefault:"stripe"`
	Store          string        `env:"BILLING_STORE" envDefault:"postgres"`
	PlansFile      string        `env:"BILLING_PLANS_FILE" envDefault:""`
	RequestTimeout time.Duration `env:"BILLING_REQUEST_TIMEOUT" envDefault:"10s"`
	SweepSchedule  string        `env:"BILLING_SWEEP_SCHEDULE" envDefault:""`
	SweepLockTTL   time.Duration `env:"BILLING_SWEEP_LOCK_TTL" envDefault:"10m"`
	VerifyCacheTTL time.Duration `env:"BILLING_VERIFY_CACHE_TTL" envDefault:"15m"`
	MaxWebhookBody int64         `env:"BILLING_MAX_WEBHOOK_BODY" envDefault:"65536"`
	RedisEnabled   bool          `env:"BILLING_REDIS_ENABLED" envDefault:"false"` // verification cache, sweep lease, shared rate limits
	CheckoutBurst  int           `env:"BILLING_CHECKOUT_BURST" envDefault:"5"`     // 0 disables the checkout rate limit
	CheckoutRefill time.Duration `env:"BILLING_CHECKOUT_REFILL" envDefault:"1m"`   // one token per interval
}

// SuccessURL is where the provider redirects after a completed checkout.
// The placeholder is expanded by Stripe; Paddle ignores it.
func (c Config) SuccessURL() string {
	return c.AppURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where the provider redirects after an abandoned checkout.
func (c Config) CancelURL() string {
	return c.AppURL + "/billing"
}

// LoadCatalog reads BILLING_PLANS_FILE, or the embedded catalog when unset.
func (c Config) LoadCatalog(ctx context.Context) (*subscription.Catalog, error) {
	if c.PlansFile == "" {
		return subscription.LoadCatalog(ctx, subscription.DefaultPlansSource())
	}
	return subscription.LoadCatalog(ctx, subscription.NewYAMLFileSource(c.PlansFile))
}
