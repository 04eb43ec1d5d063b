package subscription

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Feature is a named capability unlocked by a plan.
type Feature string

// Plan describes an entitlement tier.
type Plan struct {
	ID            PlanID
	Name          string
	ResourceLimit int64 // Unlimited (-1) disables the cap
	FeePercent    decimal.Decimal
	PriceIDs      map[BillingCycle]string
	Amounts       map[BillingCycle]decimal.Decimal // display prices, informational only
	Features      []Feature
	Free          bool

	rank int
}

// IsUnlimited reports whether the plan has no resource cap.
func (p Plan) IsUnlimited() bool {
	return p.ResourceLimit == Unlimited
}

// Rank is the plan's position in catalog tier order; higher means a more
// generous plan.
func (p Plan) Rank() int {
	return p.rank
}

// HasFeature reports whether the plan includes f.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// Fee returns the platform fee charged on a sale of the given amount,
// rounded to cents.
func (p Plan) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(p.FeePercent).Div(decimal.NewFromInt(100)).Round(2)
}

// Allows reports whether a tenant with active resources may create one more.
func (p Plan) Allows(active int64) bool {
	return p.IsUnlimited() || active < p.ResourceLimit
}
