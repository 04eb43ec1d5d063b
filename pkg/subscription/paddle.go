package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements BillingProvider for Paddle Billing. Checkout
// sessions map to Paddle transactions.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
	}, nil
}

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

// CreateCustomer creates a Paddle customer. Paddle requires an email.
func (p *PaddleProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if req.TenantID == uuid.Nil {
		return "", ErrMissingTenantID
	}
	if req.Email == "" {
		return "", errors.New("paddle customers require an email")
	}

	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      req.Email,
		CustomData: paddle.CustomData{MetadataTenantID: req.TenantID.String()},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a ready transaction whose checkout URL is the
// hosted payment page. Attribution metadata travels as custom data.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomerID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	customData := paddle.CustomData{}
	for k, v := range req.Metadata.Map() {
		customData[k] = v
	}

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerID),
		CustomData: customData,
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}

	return paddleTransactionSession(transaction), nil
}

func (p *PaddleProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	transaction, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get paddle transaction: %w", err)
	}
	return paddleTransactionSession(transaction), nil
}

// ParseWebhook validates the Paddle-Signature header against the raw body and
// decodes the notification.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error) {
	// The SDK verifier works on requests, so rebuild one around the raw body.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set(p.SignatureHeader(), signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	return decodePaddleEvent(payload)
}

// CancelAtPeriodEnd schedules cancellation for the next billing period.
func (p *PaddleProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	sub, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	if sub.ScheduledChange != nil {
		if at, err := time.Parse(time.RFC3339, sub.ScheduledChange.EffectiveAt); err == nil {
			return at.UTC(), nil
		}
	}
	return time.Time{}, nil
}

// SchedulePlanChange is not offered: Paddle applies item changes immediately.
func (p *PaddleProvider) SchedulePlanChange(context.Context, string, map[BillingCycle]string) (time.Time, error) {
	return time.Time{}, ErrUnsupported
}

func paddleTransactionSession(t *paddle.Transaction) *CheckoutSession {
	s := &CheckoutSession{
		ID:       t.ID,
		Paid:     t.Status == paddle.TransactionStatusCompleted || t.Status == paddle.TransactionStatusPaid,
		Metadata: stringMetadata(t.CustomData),
	}
	if t.Checkout != nil && t.Checkout.URL != nil {
		s.URL = *t.Checkout.URL
	}
	if t.CustomerID != nil {
		s.CustomerID = *t.CustomerID
	}
	if t.SubscriptionID != nil {
		s.SubscriptionID = *t.SubscriptionID
	}
	return s
}

func stringMetadata(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

type paddleNotification struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type paddleEntity struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Origin         string         `json:"origin"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     map[string]any `json:"custom_data"`
	Items          []struct {
		PriceID string `json:"price_id"`
		Price   struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

func (e paddleEntity) priceID() string {
	if len(e.Items) == 0 {
		return ""
	}
	if e.Items[0].Price.ID != "" {
		return e.Items[0].Price.ID
	}
	return e.Items[0].PriceID
}

// decodePaddleEvent maps Paddle notifications onto billing events. Renewal
// transactions complete like first purchases, so only checkout-originated
// ones count as a completed checkout.
func decodePaddleEvent(payload []byte) (Event, error) {
	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrInvalidEventPayload, err)
	}
	meta := EventMeta{ID: n.EventID, Type: n.EventType}

	var e paddleEntity
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &e); err != nil {
			return nil, errors.Join(ErrInvalidEventPayload, err)
		}
	}

	switch n.EventType {
	case "transaction.completed":
		if e.Origin == "subscription_recurring" {
			return InvoicePaid{EventMeta: meta, CustomerID: e.CustomerID}, nil
		}
		return CheckoutCompleted{EventMeta: meta, Session: CheckoutSession{
			ID:             e.ID,
			Paid:           true,
			CustomerID:     e.CustomerID,
			SubscriptionID: e.SubscriptionID,
			Metadata:       stringMetadata(e.CustomData),
		}}, nil
	case "subscription.created", "subscription.updated", "subscription.activated", "subscription.resumed":
		return SubscriptionChanged{
			EventMeta:      meta,
			CustomerID:     e.CustomerID,
			SubscriptionID: e.ID,
			PriceID:        e.priceID(),
			Status:         e.Status,
		}, nil
	case "subscription.canceled":
		return SubscriptionDeleted{EventMeta: meta, CustomerID: e.CustomerID, SubscriptionID: e.ID}, nil
	case "subscription.past_due", "transaction.payment_failed":
		return InvoicePaymentFailed{EventMeta: meta, CustomerID: e.CustomerID}, nil
	}
	return UnknownEvent{EventMeta: meta}, nil
}
