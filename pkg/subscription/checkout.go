package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// CheckoutOptions carries request-scoped checkout settings.
type CheckoutOptions struct {
	Email      string // used only when a customer has to be created
	SuccessURL string
	CancelURL  string
}

// CreateCheckout starts a hosted checkout for a paid plan. Plan and cycle are
// validated before any external call; the provider customer is persisted
// before the session exists so a retry reuses it.
func (s *service) CreateCheckout(ctx context.Context, tenantID uuid.UUID, planID PlanID, cycle BillingCycle, opts CheckoutOptions) (*CheckoutSession, error) {
	if tenantID == uuid.Nil {
		return nil, ErrMissingTenantID
	}
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, planID)
	}
	if plan.Free {
		return nil, ErrFreePlanCheckout
	}
	if !cycle.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBillingCycle, cycle)
	}

	priceID, err := s.catalog.PriceID(planID, cycle)
	if err != nil {
		s.log.ErrorContext(ctx, "Checkout rejected: price not configured",
			logger.TenantID(tenantID), logger.PlanID(string(planID)), logger.Error(err))
		return nil, err
	}

	customerID, err := s.resolveCustomer(ctx, tenantID, opts.Email)
	if err != nil {
		return nil, err
	}

	session, err := callProvider(ctx, s, "create_checkout_session", func(ctx context.Context) (*CheckoutSession, error) {
		return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
			CustomerID: customerID,
			PriceID:    priceID,
			SuccessURL: opts.SuccessURL,
			CancelURL:  opts.CancelURL,
			Metadata:   CheckoutMetadata{TenantID: tenantID, PlanID: planID, Cycle: cycle},
		})
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create checkout session",
			logger.TenantID(tenantID), logger.CustomerID(customerID), logger.Error(err))
		return nil, err
	}
	if session.URL == "" {
		return nil, errors.Join(ErrProviderError, ErrNoCheckoutURL)
	}

	s.observer.CheckoutCreated(planID, cycle)
	s.log.InfoContext(ctx, "Checkout session created",
		logger.TenantID(tenantID), logger.PlanID(string(planID)),
		logger.SessionID(session.ID), logger.BillingCycle(string(cycle)))
	return session, nil
}

// resolveCustomer returns the tenant's provider customer, creating and
// binding one on first use. The stored id wins over a freshly created one.
func (s *service) resolveCustomer(ctx context.Context, tenantID uuid.UUID, email string) (string, error) {
	profile, err := bounded(ctx, s.timeout, func(ctx context.Context) (*BillingProfile, error) {
		return s.profiles.Get(ctx, tenantID)
	})
	switch {
	case err == nil && profile.CustomerID != "":
		return profile.CustomerID, nil
	case err != nil && !errors.Is(err, ErrProfileNotFound):
		return "", fmt.Errorf("load billing profile: %w", err)
	}

	created, err := callProvider(ctx, s, "create_customer", func(ctx context.Context) (string, error) {
		return s.provider.CreateCustomer(ctx, CustomerRequest{TenantID: tenantID, Email: email})
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create billing customer",
			logger.TenantID(tenantID), logger.Error(err))
		return "", err
	}

	bound, err := bounded(ctx, s.timeout, func(ctx context.Context) (string, error) {
		return s.profiles.BindCustomer(ctx, tenantID, created, s.catalog.Free().ID)
	})
	if err != nil {
		return "", fmt.Errorf("bind billing customer: %w", err)
	}
	if bound != created {
		s.log.WarnContext(ctx, "Tenant already bound to another customer, reusing it",
			logger.TenantID(tenantID), logger.CustomerID(bound), slog.String("discarded_customer_id", created))
	}
	return bound, nil
}
