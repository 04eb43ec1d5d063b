package subscription

// Event is a verified billing event. The set of variants is closed; anything
// a provider sends that is not mapped arrives as UnknownEvent.
type Event interface {
	// EventID is the provider's unique delivery identifier.
	EventID() string
	// Kind is a stable name used in logs and metrics.
	Kind() string
	// ProviderType is the event type as the provider named it.
	ProviderType() string
	event()
}

// EventMeta carries fields shared by all variants.
type EventMeta struct {
	ID   string // provider event id
	Type string // provider event type as received
}

func (m EventMeta) EventID() string      { return m.ID }
func (m EventMeta) ProviderType() string { return m.Type }
func (EventMeta) event()                 {}

// CheckoutCompleted is sent when a hosted checkout succeeds.
type CheckoutCompleted struct {
	EventMeta
	Session CheckoutSession
}

func (CheckoutCompleted) Kind() string { return "checkout_completed" }

// SubscriptionChanged covers subscription creation and updates.
type SubscriptionChanged struct {
	EventMeta
	CustomerID     string
	SubscriptionID string
	PriceID        string
	Status         string // provider status, mapped with MapProviderStatus
}

func (SubscriptionChanged) Kind() string { return "subscription_changed" }

// SubscriptionDeleted is sent when a subscription has ended.
type SubscriptionDeleted struct {
	EventMeta
	CustomerID     string
	SubscriptionID string
}

func (SubscriptionDeleted) Kind() string { return "subscription_deleted" }

// InvoicePaid is sent on every successful renewal payment.
type InvoicePaid struct {
	EventMeta
	CustomerID string
}

func (InvoicePaid) Kind() string { return "invoice_paid" }

// InvoicePaymentFailed is sent when a renewal charge fails.
type InvoicePaymentFailed struct {
	EventMeta
	CustomerID string
}

func (InvoicePaymentFailed) Kind() string { return "invoice_payment_failed" }

// TrialWillEnd is sent a few days before a trial converts.
type TrialWillEnd struct {
	EventMeta
	CustomerID     string
	SubscriptionID string
}

func (TrialWillEnd) Kind() string { return "trial_will_end" }

// UnknownEvent is any provider event without a mapping.
type UnknownEvent struct {
	EventMeta
}

func (UnknownEvent) Kind() string { return "unknown" }
