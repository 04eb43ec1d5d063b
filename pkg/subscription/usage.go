package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// Usage is a tenant's resource consumption against its plan.
type Usage struct {
	PlanID PlanID `json:"plan_id"`
	Active int64  `json:"active"`
	Limit  int64  `json:"limit"` // Unlimited (-1) for uncapped plans
}

// Percent returns usage in 0-100, or -1 for unlimited plans.
func (u Usage) Percent() int {
	if u.Limit == Unlimited {
		return -1
	}
	if u.Limit == 0 {
		return 100
	}
	return min(int((u.Active*100)/u.Limit), 100)
}

// Usage returns the tenant's active resource count and limit.
func (s *service) Usage(ctx context.Context, tenantID uuid.UUID) (Usage, error) {
	profile, err := s.Profile(ctx, tenantID)
	if err != nil {
		return Usage{}, err
	}
	plan, ok := s.catalog.Lookup(profile.PlanID)
	if !ok {
		return Usage{}, errors.Join(ErrConfiguration, ErrPlanNotFound)
	}

	active, err := bounded(ctx, s.timeout, func(ctx context.Context) (int64, error) {
		return s.resources.CountActive(ctx, tenantID)
	})
	if err != nil {
		return Usage{}, errors.Join(ErrFailedToCountResourceUsage, err)
	}
	return Usage{PlanID: plan.ID, Active: active, Limit: plan.ResourceLimit}, nil
}

// CanCreate returns ErrLimitExceeded when the tenant is at its plan limit.
func (s *service) CanCreate(ctx context.Context, tenantID uuid.UUID) error {
	u, err := s.Usage(ctx, tenantID)
	if err != nil {
		return err
	}
	plan, _ := s.catalog.Lookup(u.PlanID)
	if !plan.Allows(u.Active) {
		return ErrLimitExceeded
	}
	return nil
}

// EnforceReport summarizes an enforcement sweep.
type EnforceReport struct {
	Tenants  int `json:"tenants"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// EnforceAll enforces every stored profile against its current plan. It
// catches tenants whose enforcement failed during a webhook transition.
func (s *service) EnforceAll(ctx context.Context) (EnforceReport, error) {
	return s.enforcer.EnforceAll(ctx, s.profiles)
}

// EnforceAll walks every profile in profiles and enforces its current plan.
// Per-tenant failures are counted and logged; the sweep continues.
func (e *Enforcer) EnforceAll(ctx context.Context, profiles ProfileStore) (EnforceReport, error) {
	var report EnforceReport
	err := profiles.Each(ctx, func(p BillingProfile) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Tenants++
		n, err := e.Enforce(ctx, p.TenantID, p.PlanID)
		if err != nil {
			report.Failed++
			e.log.ErrorContext(ctx, "Sweep enforcement failed",
				logger.TenantID(p.TenantID), logger.PlanID(string(p.PlanID)), logger.Error(err))
			return nil
		}
		report.Archived += n
		return nil
	})
	if err != nil {
		return report, err
	}

	e.log.InfoContext(ctx, "Quota sweep finished",
		slog.Int("tenants", report.Tenants),
		slog.Int("archived", report.Archived),
		slog.Int("failed", report.Failed))
	return report, nil
}
