package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingcore/pkg/logger"
)

// Enforcer brings a tenant's active resources down to its plan limit by
// archiving the newest ones. Older resources are always kept.
type Enforcer struct {
	catalog   *Catalog
	resources ResourceStore
	log       *slog.Logger
	timeout   time.Duration
	observer  Observer
}

// EnforcerOption configures an Enforcer.
type EnforcerOption func(*Enforcer)

func WithEnforcerLogger(l *slog.Logger) EnforcerOption {
	return func(e *Enforcer) {
		if l != nil {
			e.log = l
		}
	}
}

func WithEnforcerTimeout(d time.Duration) EnforcerOption {
	return func(e *Enforcer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithEnforcerObserver(o Observer) EnforcerOption {
	return func(e *Enforcer) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEnforcer creates an Enforcer. Panics on nil dependencies.
func NewEnforcer(catalog *Catalog, resources ResourceStore, opts ...EnforcerOption) *Enforcer {
	if catalog == nil {
		panic("subscription: Catalog is required")
	}
	if resources == nil {
		panic("subscription: ResourceStore is required")
	}
	e := &Enforcer{
		catalog:   catalog,
		resources: resources,
		log:       slog.Default(),
		timeout:   DefaultTimeout,
		observer:  noopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enforce archives the tenant's excess active resources for planID and
// returns how many were archived. Running it again right after is a no-op.
//
// An unknown plan is a configuration defect: nothing is touched and the
// returned error wraps ErrPlanNotFound and ErrConfiguration.
func (e *Enforcer) Enforce(ctx context.Context, tenantID uuid.UUID, planID PlanID) (int, error) {
	plan, ok := e.catalog.Lookup(planID)
	if !ok {
		e.log.ErrorContext(ctx, "Quota enforcement skipped: plan not in catalog",
			logger.TenantID(tenantID), logger.PlanID(string(planID)))
		return 0, errors.Join(ErrConfiguration, fmt.Errorf("%w: %q", ErrPlanNotFound, planID))
	}
	if plan.IsUnlimited() {
		return 0, nil
	}

	count, archived, err := e.archiveOverLimit(ctx, tenantID, plan.ResourceLimit)
	if err != nil {
		return 0, err
	}
	if count <= plan.ResourceLimit {
		return 0, nil
	}

	excess := count - plan.ResourceLimit
	if int64(len(archived)) < excess {
		e.log.WarnContext(ctx, "Archived fewer resources than requested",
			logger.TenantID(tenantID), logger.PlanID(string(planID)),
			slog.Int64("requested", excess), logger.Count(len(archived)))
	}
	if len(archived) > 0 {
		e.observer.ResourcesArchived(planID, len(archived))
		e.log.InfoContext(ctx, "Archived resources over plan limit",
			logger.TenantID(tenantID), logger.PlanID(string(planID)),
			slog.Int64("limit", plan.ResourceLimit), logger.Count(len(archived)))
	}
	return len(archived), nil
}

type overLimit struct {
	count    int64
	archived []uuid.UUID
}

// archiveOverLimit returns the active count it observed and the ids it
// archived to get down to limit.
func (e *Enforcer) archiveOverLimit(ctx context.Context, tenantID uuid.UUID, limit int64) (int64, []uuid.UUID, error) {
	if oa, ok := e.resources.(OverLimitArchiver); ok {
		res, err := bounded(ctx, e.timeout, func(ctx context.Context) (overLimit, error) {
			count, archived, err := oa.ArchiveOverLimit(ctx, tenantID, limit)
			return overLimit{count: count, archived: archived}, err
		})
		if err != nil {
			return 0, nil, errors.Join(ErrFailedToArchiveResources, err)
		}
		return res.count, res.archived, nil
	}

	count, err := bounded(ctx, e.timeout, func(ctx context.Context) (int64, error) {
		return e.resources.CountActive(ctx, tenantID)
	})
	if err != nil {
		return 0, nil, errors.Join(ErrFailedToCountResourceUsage, err)
	}
	if count <= limit {
		return count, nil, nil
	}

	archived, err := bounded(ctx, e.timeout, func(ctx context.Context) ([]uuid.UUID, error) {
		return e.resources.ArchiveNewest(ctx, tenantID, count-limit)
	})
	if err != nil {
		return count, nil, errors.Join(ErrFailedToArchiveResources, err)
	}
	return count, archived, nil
}
