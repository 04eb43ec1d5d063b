package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// HandleWebhook verifies and applies one provider delivery. Nothing is read or
// written before the signature checks out.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return errors.Join(ErrWebhookVerificationFailed, ErrMissingSignature)
	}

	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		s.log.WarnContext(ctx, "Rejected billing webhook", logger.Error(err))
		if !errors.Is(err, ErrWebhookVerificationFailed) && !errors.Is(err, ErrInvalidEventPayload) {
			err = errors.Join(ErrWebhookVerificationFailed, err)
		}
		return err
	}

	return s.HandleEvent(ctx, event)
}

// HandleEvent applies a verified event. Every transition sets absolute state
// derived from the event alone, so redelivery and reordering are safe.
func (s *service) HandleEvent(ctx context.Context, event Event) error {
	if event == nil {
		return ErrInvalidEventPayload
	}

	var err error
	switch ev := event.(type) {
	case CheckoutCompleted:
		err = s.onCheckoutCompleted(ctx, ev)
	case SubscriptionChanged:
		err = s.onSubscriptionChanged(ctx, ev)
	case SubscriptionDeleted:
		err = s.onSubscriptionDeleted(ctx, ev)
	case InvoicePaid:
		_, err = s.applyByCustomer(ctx, ev, ev.CustomerID, ProfileChange{Status: ptr(StatusActive)})
	case InvoicePaymentFailed:
		err = s.onPaymentFailed(ctx, ev)
	case TrialWillEnd:
		err = s.onTrialWillEnd(ctx, ev)
	default:
		s.log.InfoContext(ctx, "Ignoring unhandled billing event",
			logger.EventID(event.EventID()), logger.EventType(event.Kind()), slog.String("provider_event", event.ProviderType()))
	}

	s.observer.EventHandled(event.Kind(), err)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to handle billing event",
			logger.EventID(event.EventID()), logger.EventType(event.Kind()), logger.Error(err))
	}
	return err
}

// checkoutTarget is the single source of the state a paid checkout leads to.
// The webhook and the verifier both call it, so they cannot diverge. An unpaid
// session, or a paid one without a subscription yet, yields ErrCheckoutPending.
func (s *service) checkoutTarget(session CheckoutSession) (uuid.UUID, ProfileChange, error) {
	md, err := ParseCheckoutMetadata(session.Metadata)
	if err != nil {
		return uuid.Nil, ProfileChange{}, err
	}
	if !session.Paid {
		return md.TenantID, ProfileChange{}, fmt.Errorf("%w: %s", ErrCheckoutPending, session.ID)
	}
	plan, ok := s.catalog.Lookup(md.PlanID)
	if !ok {
		return uuid.Nil, ProfileChange{}, errors.Join(ErrConfiguration,
			fmt.Errorf("%w: checkout %s references %q", ErrPlanNotFound, session.ID, md.PlanID))
	}

	if session.SubscriptionID == "" {
		return md.TenantID, ProfileChange{}, fmt.Errorf("%w: checkout %s has no subscription", ErrCheckoutPending, session.ID)
	}

	change := ProfileChange{
		SubscriptionID: ptr(session.SubscriptionID),
		PlanID:         ptr(plan.ID),
		Status:         ptr(StatusActive),
	}
	if session.CustomerID != "" {
		change.CustomerID = ptr(session.CustomerID)
	}
	return md.TenantID, change, nil
}

func (s *service) applyToTenant(ctx context.Context, tenantID uuid.UUID, change ProfileChange) (*BillingProfile, error) {
	return bounded(ctx, s.timeout, func(ctx context.Context) (*BillingProfile, error) {
		return s.profiles.Apply(ctx, tenantID, change, s.catalog.Free().ID)
	})
}

func (s *service) onCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	tenantID, change, err := s.checkoutTarget(ev.Session)
	switch {
	case errors.Is(err, ErrInvalidEventPayload):
		s.log.WarnContext(ctx, "Checkout event cannot be attributed, skipping",
			logger.EventID(ev.ID), logger.SessionID(ev.Session.ID), logger.Error(err))
		return nil
	case errors.Is(err, ErrCheckoutPending):
		// Async payment methods complete later with their own event.
		s.log.InfoContext(ctx, "Checkout completed without payment, waiting",
			logger.EventID(ev.ID), logger.SessionID(ev.Session.ID), logger.TenantID(tenantID))
		return nil
	}
	if err != nil {
		return err
	}

	p, err := s.applyToTenant(ctx, tenantID, change)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Subscription activated by checkout",
		logger.TenantID(tenantID), logger.PlanID(string(p.PlanID)), logger.SubscriptionID(p.SubscriptionID))
	return nil
}

func (s *service) onSubscriptionChanged(ctx context.Context, ev SubscriptionChanged) error {
	plan, ok := s.catalog.PlanForPrice(ev.PriceID)
	if !ok {
		// Unmatched prices keep the tenant on a paid tier rather than dropping
		// them to free; the warning is the signal to fix the catalog.
		fallback, found := s.catalog.LowestPaid()
		if !found {
			return errors.Join(ErrConfiguration, errors.New("catalog has no paid plan to fall back to"))
		}
		s.log.WarnContext(ctx, "Price not in catalog, assuming lowest paid plan",
			logger.EventID(ev.ID), logger.PriceID(ev.PriceID), logger.PlanID(string(fallback.ID)))
		plan = fallback
	}

	change := ProfileChange{PlanID: ptr(plan.ID)}
	if ev.SubscriptionID != "" {
		change.SubscriptionID = ptr(ev.SubscriptionID)
	}
	if status, ok := MapProviderStatus(ev.Status); ok {
		change.Status = &status
	}

	p, err := s.applyByCustomer(ctx, ev, ev.CustomerID, change)
	if err != nil || p == nil {
		return err
	}
	s.enforceQuietly(ctx, p.TenantID, plan.ID)
	return nil
}

func (s *service) onSubscriptionDeleted(ctx context.Context, ev SubscriptionDeleted) error {
	free := s.catalog.Free().ID
	p, err := s.applyByCustomer(ctx, ev, ev.CustomerID, ProfileChange{
		SubscriptionID: ptr(""),
		PlanID:         ptr(free),
		Status:         ptr(StatusCanceled),
	})
	if err != nil || p == nil {
		return err
	}
	s.log.InfoContext(ctx, "Subscription ended, tenant moved to free plan",
		logger.TenantID(p.TenantID), logger.SubscriptionID(ev.SubscriptionID))
	s.enforceQuietly(ctx, p.TenantID, free)
	return nil
}

func (s *service) onPaymentFailed(ctx context.Context, ev InvoicePaymentFailed) error {
	p, err := s.applyByCustomer(ctx, ev, ev.CustomerID, ProfileChange{Status: ptr(StatusPastDue)})
	if err != nil || p == nil {
		return err
	}
	if err := s.notifier.PaymentFailed(ctx, p.TenantID); err != nil {
		s.log.WarnContext(ctx, "Payment failure notification failed",
			logger.TenantID(p.TenantID), logger.Error(err))
	}
	return nil
}

func (s *service) onTrialWillEnd(ctx context.Context, ev TrialWillEnd) error {
	p, err := bounded(ctx, s.timeout, func(ctx context.Context) (*BillingProfile, error) {
		return s.profiles.GetByCustomerID(ctx, ev.CustomerID)
	})
	if errors.Is(err, ErrProfileNotFound) {
		s.log.InfoContext(ctx, "Trial ending for unknown customer",
			logger.EventID(ev.ID), logger.CustomerID(ev.CustomerID))
		return nil
	}
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Trial ending soon",
		logger.TenantID(p.TenantID), logger.SubscriptionID(ev.SubscriptionID))
	if err := s.notifier.TrialEnding(ctx, p.TenantID, ev.SubscriptionID); err != nil {
		s.log.WarnContext(ctx, "Trial ending notification failed",
			logger.TenantID(p.TenantID), logger.Error(err))
	}
	return nil
}

// enforceQuietly runs quota enforcement after a transition. Failures are
// logged only: the state change already happened and the next relevant event
// or sweep enforces again.
func (s *service) enforceQuietly(ctx context.Context, tenantID uuid.UUID, planID PlanID) {
	if _, err := s.enforcer.Enforce(ctx, tenantID, planID); err != nil {
		s.log.ErrorContext(ctx, "Quota enforcement failed after plan change",
			logger.TenantID(tenantID), logger.PlanID(string(planID)), logger.Error(err))
	}
}
