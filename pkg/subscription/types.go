package subscription

import "strings"

// PlanID identifies a plan in the catalog.
type PlanID string

func (id PlanID) String() string { return string(id) }

// Unlimited marks a plan without a resource cap.
const Unlimited int64 = -1

// BillingCycle is the recurring interval a paid plan is bought for.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports whether c is a supported billing cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// ParseBillingCycle accepts the canonical names plus the provider interval
// spellings ("month", "year", "annual").
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return CycleMonthly, nil
	case "yearly", "year", "annual", "annually":
		return CycleYearly, nil
	default:
		return "", ErrInvalidBillingCycle
	}
}

// SubscriptionStatus is the locally tracked state of a tenant's subscription.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusNone, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// MapProviderStatus folds a provider subscription status onto the local
// status set. The second value is false when the status carries no
// information for us (e.g. "incomplete") and must leave the profile untouched.
func MapProviderStatus(status string) (SubscriptionStatus, bool) {
	switch strings.ToLower(status) {
	case "active", "trialing":
		return StatusActive, true
	case "past_due", "unpaid":
		return StatusPastDue, true
	case "canceled", "cancelled", "incomplete_expired", "expired":
		return StatusCanceled, true
	default:
		return "", false
	}
}
