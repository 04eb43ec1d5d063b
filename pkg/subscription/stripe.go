package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements BillingProvider with Stripe Checkout and
// subscription schedules.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe provider with its own API client, so
// several providers with different keys can coexist in one process.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &StripeProvider{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

// CreateCustomer creates a customer tagged with the tenant id. The request
// carries a per-tenant idempotency key.
func (p *StripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if req.TenantID == uuid.Nil {
		return "", ErrMissingTenantID
	}
	params := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.AddMetadata(MetadataTenantID, req.TenantID.String())
	params.SetIdempotencyKey(req.IdempotencyKey())

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

// CreateCheckoutSession creates a subscription-mode Checkout session. The
// attribution metadata is set on the session and on the subscription it creates.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomerID
	}

	md := req.Metadata.Map()
	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		ClientReferenceID:        stripe.String(req.Metadata.TenantID.String()),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: md,
		},
	}
	for k, v := range md {
		params.AddMetadata(k, v)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}
	return checkoutSessionFromStripe(s), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	s, err := p.api.CheckoutSessions.Get(sessionID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		if isStripeNotFound(err) {
			return nil, errors.Join(ErrSessionNotFound, err)
		}
		return nil, fmt.Errorf("get stripe checkout session: %w", err)
	}
	return checkoutSessionFromStripe(s), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated because only stable fields are read.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	return decodeStripeEvent(event.ID, string(event.Type), event.Data.Raw)
}

// CancelAtPeriodEnd stops renewal and returns the end of the paid period.
func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	sub, err := p.api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("cancel stripe subscription at period end: %w", err)
	}
	return stripePeriodEnd(sub), nil
}

// SchedulePlanChange attaches (or reuses) a subscription schedule whose
// current phase keeps the existing price and whose next phase switches to the
// target price for the same interval, without proration.
func (p *StripeProvider) SchedulePlanChange(ctx context.Context, subscriptionID string, prices map[BillingCycle]string) (time.Time, error) {
	sub, err := p.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("get stripe subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return time.Time{}, fmt.Errorf("stripe subscription %s has no priced items", subscriptionID)
	}

	current := sub.Items.Data[0].Price
	cycle := CycleMonthly
	if current.Recurring != nil && current.Recurring.Interval == stripe.PriceRecurringIntervalYear {
		cycle = CycleYearly
	}
	target, ok := prices[cycle]
	if !ok || target == "" {
		return time.Time{}, errors.Join(ErrConfiguration, ErrPriceNotConfigured)
	}

	var schedule *stripe.SubscriptionSchedule
	if sub.Schedule != nil && sub.Schedule.ID != "" {
		schedule, err = p.api.SubscriptionSchedules.Get(sub.Schedule.ID, &stripe.SubscriptionScheduleParams{
			Params: stripe.Params{Context: ctx},
		})
	} else {
		schedule, err = p.api.SubscriptionSchedules.New(&stripe.SubscriptionScheduleParams{
			Params:           stripe.Params{Context: ctx},
			FromSubscription: stripe.String(subscriptionID),
		})
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("prepare stripe subscription schedule: %w", err)
	}
	if schedule.CurrentPhase == nil {
		return time.Time{}, fmt.Errorf("stripe schedule %s has no current phase", schedule.ID)
	}

	start, end := schedule.CurrentPhase.StartDate, schedule.CurrentPhase.EndDate
	_, err = p.api.SubscriptionSchedules.Update(schedule.ID, &stripe.SubscriptionScheduleParams{
		Params:      stripe.Params{Context: ctx},
		EndBehavior: stripe.String(string(stripe.SubscriptionScheduleEndBehaviorRelease)),
		Phases: []*stripe.SubscriptionSchedulePhaseParams{
			{
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{Price: stripe.String(current.ID), Quantity: stripe.Int64(1)},
				},
				StartDate: stripe.Int64(start),
				EndDate:   stripe.Int64(end),
			},
			{
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{Price: stripe.String(target), Quantity: stripe.Int64(1)},
				},
				ProrationBehavior: stripe.String("none"),
			},
		},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("update stripe subscription schedule: %w", err)
	}
	return time.Unix(end, 0).UTC(), nil
}

func checkoutSessionFromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Metadata: s.Metadata,
		Paid: s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			(s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired &&
				s.Status == stripe.CheckoutSessionStatusComplete),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}

func stripePeriodEnd(sub *stripe.Subscription) time.Time {
	if sub.CancelAt > 0 {
		return time.Unix(sub.CancelAt, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		return time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	}
	return time.Time{}
}

func isStripeNotFound(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing
}

// Webhook payloads are decoded into local shapes instead of the SDK types so
// only the fields the reconciler needs are bound to the API version.
type stripeCheckoutPayload struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeSubscriptionPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscriptionPayload) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

type stripeInvoicePayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

func decodeStripeEvent(id, eventType string, raw json.RawMessage) (Event, error) {
	meta := EventMeta{ID: id, Type: eventType}

	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var s stripeCheckoutPayload
		if err := unmarshalStripe(raw, &s); err != nil {
			return nil, err
		}
		return CheckoutCompleted{EventMeta: meta, Session: CheckoutSession{
			ID:             s.ID,
			Paid:           s.PaymentStatus != "unpaid",
			CustomerID:     s.Customer,
			SubscriptionID: s.Subscription,
			Metadata:       s.Metadata,
		}}, nil

	case "customer.subscription.created", "customer.subscription.updated":
		var s stripeSubscriptionPayload
		if err := unmarshalStripe(raw, &s); err != nil {
			return nil, err
		}
		return SubscriptionChanged{
			EventMeta:      meta,
			CustomerID:     s.Customer,
			SubscriptionID: s.ID,
			PriceID:        s.priceID(),
			Status:         s.Status,
		}, nil

	case "customer.subscription.deleted":
		var s stripeSubscriptionPayload
		if err := unmarshalStripe(raw, &s); err != nil {
			return nil, err
		}
		return SubscriptionDeleted{EventMeta: meta, CustomerID: s.Customer, SubscriptionID: s.ID}, nil

	case "customer.subscription.trial_will_end":
		var s stripeSubscriptionPayload
		if err := unmarshalStripe(raw, &s); err != nil {
			return nil, err
		}
		return TrialWillEnd{EventMeta: meta, CustomerID: s.Customer, SubscriptionID: s.ID}, nil

	case "invoice.paid":
		var inv stripeInvoicePayload
		if err := unmarshalStripe(raw, &inv); err != nil {
			return nil, err
		}
		return InvoicePaid{EventMeta: meta, CustomerID: inv.Customer}, nil

	case "invoice.payment_failed":
		var inv stripeInvoicePayload
		if err := unmarshalStripe(raw, &inv); err != nil {
			return nil, err
		}
		return InvoicePaymentFailed{EventMeta: meta, CustomerID: inv.Customer}, nil
	}

	return UnknownEvent{EventMeta: meta}, nil
}

func unmarshalStripe(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrInvalidEventPayload, err)
	}
	return nil
}
