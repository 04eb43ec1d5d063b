package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// DefaultTimeout bounds a single provider or store call.
const DefaultTimeout = 10 * time.Second

// Service defines the public interface of the billing core.
type Service interface {
	Catalog() *Catalog
	SignatureHeader() string

	// Profile returns the stored profile or the default free state.
	Profile(ctx context.Context, tenantID uuid.UUID) (BillingProfile, error)

	CreateCheckout(ctx context.Context, tenantID uuid.UUID, planID PlanID, cycle BillingCycle, opts CheckoutOptions) (*CheckoutSession, error)
	VerifyCheckout(ctx context.Context, tenantID uuid.UUID, sessionID string) (*VerifyResult, error)

	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	HandleEvent(ctx context.Context, event Event) error

	ChangePlan(ctx context.Context, tenantID uuid.UUID, target PlanID) (*PlanChange, error)

	Enforce(ctx context.Context, tenantID uuid.UUID, planID PlanID) (int, error)
	EnforceAll(ctx context.Context) (EnforceReport, error)

	Usage(ctx context.Context, tenantID uuid.UUID) (Usage, error)
	CanCreate(ctx context.Context, tenantID uuid.UUID) error

	// Fee quotes the platform fee on a tenant's sale.
	Fee(ctx context.Context, tenantID uuid.UUID, amount decimal.Decimal) (FeeQuote, error)
}

type service struct {
	catalog   *Catalog
	provider  BillingProvider
	profiles  ProfileStore
	resources ResourceStore
	enforcer  *Enforcer

	log      *slog.Logger
	timeout  time.Duration
	observer Observer
	notifier Notifier
	sessions SessionCache
}

// NewService wires the billing core. Panics if a required dependency is nil
// so misconfiguration fails at startup.
func NewService(catalog *Catalog, provider BillingProvider, profiles ProfileStore, resources ResourceStore, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("subscription: Catalog is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}
	if profiles == nil {
		panic("subscription: ProfileStore is required")
	}
	if resources == nil {
		panic("subscription: ResourceStore is required")
	}

	s := &service{
		catalog:   catalog,
		provider:  provider,
		profiles:  profiles,
		resources: resources,
		log:       slog.Default(),
		timeout:   DefaultTimeout,
		observer:  noopObserver{},
		notifier:  noopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With(logger.Component("billing"))
	s.enforcer = NewEnforcer(catalog, resources,
		WithEnforcerLogger(s.log),
		WithEnforcerTimeout(s.timeout),
		WithEnforcerObserver(s.observer),
	)
	return s
}

func (s *service) Catalog() *Catalog { return s.catalog }

func (s *service) SignatureHeader() string { return s.provider.SignatureHeader() }

func (s *service) Profile(ctx context.Context, tenantID uuid.UUID) (BillingProfile, error) {
	p, err := bounded(ctx, s.timeout, func(ctx context.Context) (*BillingProfile, error) {
		return s.profiles.Get(ctx, tenantID)
	})
	if errors.Is(err, ErrProfileNotFound) {
		return DefaultProfile(tenantID, s.catalog.Free().ID), nil
	}
	if err != nil {
		return BillingProfile{}, err
	}
	return *p, nil
}

func (s *service) Enforce(ctx context.Context, tenantID uuid.UUID, planID PlanID) (int, error) {
	return s.enforcer.Enforce(ctx, tenantID, planID)
}

// applyByCustomer writes a transition for the tenant bound to customerID.
// A missing tenant is logged and skipped: events may precede the binding.
func (s *service) applyByCustomer(ctx context.Context, ev Event, customerID string, change ProfileChange) (*BillingProfile, error) {
	if customerID == "" {
		s.log.WarnContext(ctx, "Billing event without customer id",
			logger.EventID(ev.EventID()), logger.EventType(ev.Kind()))
		return nil, nil
	}

	p, err := bounded(ctx, s.timeout, func(ctx context.Context) (*BillingProfile, error) {
		return s.profiles.ApplyByCustomerID(ctx, customerID, change)
	})
	if errors.Is(err, ErrProfileNotFound) {
		s.log.InfoContext(ctx, "No tenant bound to customer, skipping event",
			logger.EventID(ev.EventID()), logger.EventType(ev.Kind()), logger.CustomerID(customerID))
		return nil, nil
	}
	return p, err
}

// bounded runs fn under the service timeout and turns a deadline into the
// retryable ErrTimeout.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return v, errors.Join(ErrTimeout, err)
	}
	return v, err
}

// callProvider is bounded plus error classification and metrics. Errors the
// provider already classified are passed through; the rest become
// ErrProviderError with the original message preserved.
func callProvider[T any](ctx context.Context, s *service, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := bounded(ctx, s.timeout, fn)
	s.observer.ProviderCall(op, time.Since(start), err)

	if err == nil {
		return v, nil
	}
	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrProviderError),
		errors.Is(err, ErrWebhookVerificationFailed),
		errors.Is(err, ErrInvalidEventPayload),
		errors.Is(err, ErrUnsupported),
		IsNotFound(err):
		return v, err
	}
	return v, errors.Join(ErrProviderError, err)
}
