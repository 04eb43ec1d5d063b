package billing

import (
	"fmt"

	"github.com/dmitrymomot/billingcore/pkg/config"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// NewProvider builds the billing provider named by BILLING_PROVIDER from its
// own environment block. Missing credentials fail here, at startup.
func NewProvider(name string) (subscription.BillingProvider, error) {
	switch name {
	case ProviderStripe:
		var cfg subscription.StripeConfig
		if err := config.Load(&cfg); err != nil {
			return nil, fmt.Errorf("stripe config: %w", err)
		}
		return subscription.NewStripeProvider(cfg)
	case ProviderPaddle:
		var cfg subscription.PaddleConfig
		if err := config.Load(&cfg); err != nil {
			return nil, fmt.Errorf("paddle config: %w", err)
		}
		return subscription.NewPaddleProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
