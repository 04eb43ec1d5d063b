package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// FeeQuote is the platform fee for one sale by a tenant.
type FeeQuote struct {
	PlanID     PlanID          `json:"plan_id"`
	Amount     decimal.Decimal `json:"amount"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	Fee        decimal.Decimal `json:"fee"`
	Fallback   bool            `json:"fallback,omitempty"`
}

// Fee quotes the platform fee for a sale of amount under the tenant's plan.
//
// A profile whose plan is no longer in the catalog is charged the free plan's
// fee and the fallback is logged at warn.
func (s *service) Fee(ctx context.Context, tenantID uuid.UUID, amount decimal.Decimal) (FeeQuote, error) {
	if amount.IsNegative() {
		return FeeQuote{}, ErrInvalidAmount
	}
	profile, err := s.Profile(ctx, tenantID)
	if err != nil {
		return FeeQuote{}, err
	}

	plan, ok := s.catalog.Lookup(profile.PlanID)
	fallback := !ok
	if fallback {
		plan = s.catalog.Free()
		s.log.WarnContext(ctx, "Tenant plan not in catalog, charging default fee",
			logger.TenantID(tenantID), logger.PlanID(string(profile.PlanID)),
			logger.Component("fee"))
	}

	return FeeQuote{
		PlanID:     plan.ID,
		Amount:     amount,
		FeePercent: plan.FeePercent,
		Fee:        plan.Fee(amount),
		Fallback:   fallback,
	}, nil
}
