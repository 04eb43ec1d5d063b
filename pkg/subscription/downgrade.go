package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// PlanChange describes an accepted plan change request.
type PlanChange struct {
	From        PlanID    `json:"from"`
	To          PlanID    `json:"to"`
	Immediate   bool      `json:"immediate"`
	EffectiveAt time.Time `json:"effective_at"`
	Archived    int       `json:"archived,omitempty"`
}

// ChangePlan moves a tenant to a lower tier. Upgrades go through checkout.
//
// Without a provider subscription the only valid target is the free plan, and
// the profile is corrected locally with quota enforcement. With one, a free
// target cancels at period end and a lower paid tier is scheduled for the end
// of the period; the webhook that follows applies the local state.
func (s *service) ChangePlan(ctx context.Context, tenantID uuid.UUID, target PlanID) (*PlanChange, error) {
	targetPlan, ok := s.catalog.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, target)
	}

	profile, err := s.Profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	current, ok := s.catalog.Lookup(profile.PlanID)
	if !ok {
		current = s.catalog.Free()
	}

	if targetPlan.ID == current.ID && profile.HasSubscription() {
		return nil, fmt.Errorf("%w: already on %q", ErrInvalidPlanChange, target)
	}
	if targetPlan.Rank() > current.Rank() {
		return nil, fmt.Errorf("%w: %q is an upgrade from %q, use checkout", ErrInvalidPlanChange, target, current.ID)
	}

	change := &PlanChange{From: current.ID, To: targetPlan.ID}

	if !profile.HasSubscription() {
		if !targetPlan.Free {
			return nil, ErrNoActiveSubscription
		}
		if _, err := s.applyToTenant(ctx, tenantID, ProfileChange{
			PlanID: ptr(targetPlan.ID),
			Status: ptr(StatusCanceled),
		}); err != nil {
			return nil, err
		}
		archived, err := s.enforcer.Enforce(ctx, tenantID, targetPlan.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "Quota enforcement failed after local downgrade",
				logger.TenantID(tenantID), logger.Error(err))
		}
		change.Immediate = true
		change.EffectiveAt = time.Now().UTC()
		change.Archived = archived
		s.log.InfoContext(ctx, "Billing profile corrected to free plan",
			logger.TenantID(tenantID), logger.PlanID(string(current.ID)))
		return change, nil
	}

	var at time.Time
	if targetPlan.Free {
		at, err = callProvider(ctx, s, "cancel_at_period_end", func(ctx context.Context) (time.Time, error) {
			return s.provider.CancelAtPeriodEnd(ctx, profile.SubscriptionID)
		})
	} else {
		at, err = callProvider(ctx, s, "schedule_plan_change", func(ctx context.Context) (time.Time, error) {
			return s.provider.SchedulePlanChange(ctx, profile.SubscriptionID, targetPlan.PriceIDs)
		})
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to schedule plan change",
			logger.TenantID(tenantID), logger.PlanID(string(targetPlan.ID)), logger.Error(err))
		return nil, err
	}

	change.EffectiveAt = at
	s.log.InfoContext(ctx, "Plan change scheduled",
		logger.TenantID(tenantID), logger.PlanID(string(targetPlan.ID)),
		logger.SubscriptionID(profile.SubscriptionID))
	return change, nil
}
