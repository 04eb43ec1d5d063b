package subscription

import (
	"time"

	"github.com/google/uuid"
)

// BillingProfile is a tenant's locally owned billing state. A tenant without a
// stored profile is on the free plan with StatusNone.
type BillingProfile struct {
	TenantID       uuid.UUID          `json:"tenant_id"`
	CustomerID     string             `json:"customer_id,omitempty"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	PlanID         PlanID             `json:"plan_id"`
	Status         SubscriptionStatus `json:"status"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// DefaultProfile returns the implicit state of a tenant that has never been
// written.
func DefaultProfile(tenantID uuid.UUID, free PlanID) BillingProfile {
	return BillingProfile{
		TenantID: tenantID,
		PlanID:   free,
		Status:   StatusNone,
	}
}

// HasSubscription reports whether the profile is bound to a provider
// subscription.
func (p BillingProfile) HasSubscription() bool {
	return p.SubscriptionID != ""
}

// ProfileChange is an absolute target state for the fields it sets. Nil
// fields are left as they are. Applying the same change twice yields the same
// profile.
type ProfileChange struct {
	CustomerID     *string // set once, ignored when a customer is already bound
	SubscriptionID *string // empty string clears the binding
	PlanID         *PlanID
	Status         *SubscriptionStatus
}

// IsEmpty reports whether the change touches no field.
func (c ProfileChange) IsEmpty() bool {
	return c.CustomerID == nil && c.SubscriptionID == nil && c.PlanID == nil && c.Status == nil
}

// ApplyTo returns p with the change applied. Stores that cannot express the
// change in a single statement use this to compute the new row.
func (c ProfileChange) ApplyTo(p BillingProfile, now time.Time) BillingProfile {
	if c.CustomerID != nil && p.CustomerID == "" {
		p.CustomerID = *c.CustomerID
	}
	if c.SubscriptionID != nil {
		p.SubscriptionID = *c.SubscriptionID
	}
	if c.PlanID != nil {
		p.PlanID = *c.PlanID
	}
	if c.Status != nil {
		p.Status = *c.Status
	}
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
	return p
}

func ptr[T any](v T) *T { return &v }
