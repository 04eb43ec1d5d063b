package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// VerifyResult is the outcome of a checkout verification poll.
type VerifyResult struct {
	Paid     bool            `json:"paid"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Profile  *BillingProfile `json:"profile,omitempty"`
}

// VerifyCheckout is the synchronous twin of the checkout webhook. An unpaid
// session is a pending state, not an error, and changes nothing. A paid one
// applies the same target state the webhook would.
//
// A non-nil tenantID must match the session's tenant; otherwise the session
// is reported as not found.
func (s *service) VerifyCheckout(ctx context.Context, tenantID uuid.UUID, sessionID string) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	if s.sessions != nil {
		if res, ok := s.sessions.Get(ctx, sessionID); ok && res.Paid {
			if tenantID != uuid.Nil && res.TenantID != tenantID {
				return nil, ErrSessionNotFound
			}
			return res, nil
		}
	}

	session, err := callProvider(ctx, s, "get_checkout_session", func(ctx context.Context) (*CheckoutSession, error) {
		return s.provider.GetCheckoutSession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	md, err := ParseCheckoutMetadata(session.Metadata)
	if err != nil {
		s.log.WarnContext(ctx, "Checkout session has no attribution metadata",
			logger.SessionID(sessionID), logger.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if tenantID != uuid.Nil && md.TenantID != tenantID {
		s.log.WarnContext(ctx, "Checkout session belongs to another tenant",
			logger.SessionID(sessionID), logger.TenantID(tenantID))
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	target, change, err := s.checkoutTarget(*session)
	if errors.Is(err, ErrCheckoutPending) {
		return &VerifyResult{Paid: false, TenantID: md.TenantID}, nil
	}
	if err != nil {
		return nil, err
	}

	profile, err := s.applyToTenant(ctx, target, change)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{Paid: true, TenantID: target, Profile: profile}
	if s.sessions != nil {
		s.sessions.Set(ctx, sessionID, res)
	}
	s.log.InfoContext(ctx, "Checkout verified",
		logger.TenantID(target), logger.SessionID(sessionID), logger.PlanID(string(profile.PlanID)))
	return res, nil
}
