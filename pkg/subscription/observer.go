package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Observer receives counters from the billing core. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	CheckoutCreated(plan PlanID, cycle BillingCycle)
	EventHandled(kind string, err error)
	ResourcesArchived(plan PlanID, count int)
	ProviderCall(op string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) CheckoutCreated(PlanID, BillingCycle)      {}
func (noopObserver) EventHandled(string, error)                {}
func (noopObserver) ResourcesArchived(PlanID, int)             {}
func (noopObserver) ProviderCall(string, time.Duration, error) {}

// Notifier is called for events that deserve a message to the tenant but do
// not change billing state. Delivery is up to the implementation.
type Notifier interface {
	TrialEnding(ctx context.Context, tenantID uuid.UUID, subscriptionID string) error
	PaymentFailed(ctx context.Context, tenantID uuid.UUID) error
}

type noopNotifier struct{}

func (noopNotifier) TrialEnding(context.Context, uuid.UUID, string) error { return nil }
func (noopNotifier) PaymentFailed(context.Context, uuid.UUID) error       { return nil }

// SessionCache remembers verified paid sessions so client polling after the
// redirect does not hit the provider each time. Lookups are best effort.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*VerifyResult, bool)
	Set(ctx context.Context, sessionID string, res *VerifyResult)
}
