package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BillingProvider is the boundary to the external payment provider. It is
// kept small so Stripe and Paddle can both implement it with hosted checkout.
type BillingProvider interface {
	// CreateCustomer creates the provider-side customer for a tenant. The
	// implementation must be safe to retry for the same tenant.
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)

	// CreateCheckoutSession creates a hosted checkout for a single recurring price.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// GetCheckoutSession returns ErrSessionNotFound for unknown ids.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// ParseWebhook verifies the signature against the raw payload and decodes
	// the event. It returns ErrWebhookVerificationFailed on a mismatch.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error)

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string

	// CancelAtPeriodEnd stops renewal and returns when the cancellation takes effect.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)

	// SchedulePlanChange switches the subscription to the price matching its
	// current billing cycle at the end of the period and returns that time.
	SchedulePlanChange(ctx context.Context, subscriptionID string, prices map[BillingCycle]string) (time.Time, error)
}

// CustomerRequest describes the customer to create.
type CustomerRequest struct {
	TenantID uuid.UUID
	Email    string
}

// IdempotencyKey is stable per tenant so a retried creation returns the same customer.
func (r CustomerRequest) IdempotencyKey() string {
	return "customer-" + r.TenantID.String()
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   CheckoutMetadata
}

// Metadata keys attached to sessions and the subscriptions they create.
const (
	MetadataTenantID     = "tenant_id"
	MetadataPlanID       = "plan_id"
	MetadataBillingCycle = "billing_cycle"
)

// CheckoutMetadata attributes a session back to a tenant without a lookup table.
type CheckoutMetadata struct {
	TenantID uuid.UUID
	PlanID   PlanID
	Cycle    BillingCycle
}

// Map encodes the metadata for the provider.
func (m CheckoutMetadata) Map() map[string]string {
	return map[string]string{
		MetadataTenantID:     m.TenantID.String(),
		MetadataPlanID:       string(m.PlanID),
		MetadataBillingCycle: string(m.Cycle),
	}
}

// ParseCheckoutMetadata decodes metadata written by Map. Missing or malformed
// tenant and plan keys are reported; the cycle is optional.
func ParseCheckoutMetadata(md map[string]string) (CheckoutMetadata, error) {
	var m CheckoutMetadata

	raw, ok := md[MetadataTenantID]
	if !ok || raw == "" {
		return m, errors.Join(ErrInvalidEventPayload, ErrMissingTenantID)
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return m, errors.Join(ErrInvalidEventPayload, fmt.Errorf("tenant id %q: %w", raw, err))
	}
	m.TenantID = tenantID

	m.PlanID = PlanID(md[MetadataPlanID])
	if m.PlanID == "" {
		return m, errors.Join(ErrInvalidEventPayload, errors.New("plan id is missing"))
	}

	if c, err := ParseBillingCycle(md[MetadataBillingCycle]); err == nil {
		m.Cycle = c
	}
	return m, nil
}

// CheckoutSession is the provider's view of a hosted checkout.
type CheckoutSession struct {
	ID             string
	URL            string
	Paid           bool
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}
