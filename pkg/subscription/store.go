package subscription

import (
	"context"

	"github.com/google/uuid"
)

// ProfileStore persists billing profiles. Profiles are keyed by tenant and
// also reachable by provider customer id, which is all most events carry.
type ProfileStore interface {
	// Get returns ErrProfileNotFound if the tenant has no stored profile.
	Get(ctx context.Context, tenantID uuid.UUID) (*BillingProfile, error)

	// GetByCustomerID returns ErrProfileNotFound if no profile is bound to the customer.
	GetByCustomerID(ctx context.Context, customerID string) (*BillingProfile, error)

	// BindCustomer creates the profile with the free plan if needed and sets its
	// customer id unless one is already bound. It returns the persisted id,
	// which differs from customerID when a concurrent caller won.
	BindCustomer(ctx context.Context, tenantID uuid.UUID, customerID string, free PlanID) (string, error)

	// Apply upserts the change for a tenant. A missing profile is created from
	// the default state first.
	Apply(ctx context.Context, tenantID uuid.UUID, change ProfileChange, free PlanID) (*BillingProfile, error)

	// ApplyByCustomerID applies the change to the profile bound to customerID.
	// It returns ErrProfileNotFound when there is none.
	ApplyByCustomerID(ctx context.Context, customerID string, change ProfileChange) (*BillingProfile, error)

	// Each calls fn for every stored profile until fn returns an error.
	Each(ctx context.Context, fn func(BillingProfile) error) error
}

// ResourceStore tracks the managed resources subject to plan quotas.
type ResourceStore interface {
	CountActive(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// ArchiveNewest archives up to n active resources of the tenant, newest
	// first, selecting and updating in one atomic step. It returns the ids it
	// archived; fewer than n is not an error.
	ArchiveNewest(ctx context.Context, tenantID uuid.UUID, n int64) ([]uuid.UUID, error)
}

// OverLimitArchiver is an optional ResourceStore capability: count the
// tenant's active resources and archive the newest ones above limit in one
// atomic step. Concurrent calls for the same tenant archive at most
// count-limit resources in total. Enforcer uses it when the store has it.
type OverLimitArchiver interface {
	ArchiveOverLimit(ctx context.Context, tenantID uuid.UUID, limit int64) (count int64, archived []uuid.UUID, err error)
}
