package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billingcore/pkg/pg"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

// eachBatchSize is the page size used when walking all profiles.
const eachBatchSize = 500

// DB is the subset of *pgxpool.Pool the stores need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements subscription.ProfileStore,
// subscription.ResourceStore and subscription.OverLimitArchiver. Profile
// writes are single statements, so concurrent webhook and verifier writes
// converge without explicit locking. Enforcement takes a per-tenant advisory
// lock for the length of its transaction.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("billing: DB is required")
	}
	return &PostgresStore{db: db}
}

const profileColumns = `tenant_id, COALESCE(customer_id, ''), COALESCE(subscription_id, ''), plan_id, status, updated_at`

func scanProfile(row pgx.Row) (*subscription.BillingProfile, error) {
	var (
		p            subscription.BillingProfile
		plan, status string
	)
	if err := row.Scan(&p.TenantID, &p.CustomerID, &p.SubscriptionID, &plan, &status, &p.UpdatedAt); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrProfileNotFound
		}
		return nil, err
	}
	p.PlanID = subscription.PlanID(plan)
	p.Status = subscription.SubscriptionStatus(status)
	return &p, nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID uuid.UUID) (*subscription.BillingProfile, error) {
	return scanProfile(s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM billing_profiles WHERE tenant_id = $1`, tenantID))
}

func (s *PostgresStore) GetByCustomerID(ctx context.Context, customerID string) (*subscription.BillingProfile, error) {
	if customerID == "" {
		return nil, subscription.ErrProfileNotFound
	}
	return scanProfile(s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM billing_profiles WHERE customer_id = $1`, customerID))
}

const bindCustomerSQL = `
INSERT INTO billing_profiles (tenant_id, customer_id, plan_id, status)
VALUES ($1, $2, $3, 'none')
ON CONFLICT (tenant_id) DO UPDATE SET
    customer_id = COALESCE(billing_profiles.customer_id, EXCLUDED.customer_id),
    updated_at  = GREATEST(billing_profiles.updated_at, now())
RETURNING customer_id`

func (s *PostgresStore) BindCustomer(ctx context.Context, tenantID uuid.UUID, customerID string, free subscription.PlanID) (string, error) {
	if customerID == "" {
		return "", subscription.ErrMissingCustomerID
	}
	var bound string
	if err := s.db.QueryRow(ctx, bindCustomerSQL, tenantID, customerID, string(free)).Scan(&bound); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("customer %s is bound to another tenant: %w", customerID, err)
		}
		return "", err
	}
	return bound, nil
}

// changeArgs flattens a ProfileChange into statement parameters. A nil
// pointer becomes NULL, which the statements read as "keep".
func changeArgs(c subscription.ProfileChange) (customer, subID *string, setSub bool, plan, status *string) {
	customer = c.CustomerID
	if c.SubscriptionID != nil {
		subID, setSub = c.SubscriptionID, true
	}
	if c.PlanID != nil {
		v := string(*c.PlanID)
		plan = &v
	}
	if c.Status != nil {
		v := string(*c.Status)
		status = &v
	}
	return customer, subID, setSub, plan, status
}

const applySQL = `
INSERT INTO billing_profiles (tenant_id, customer_id, subscription_id, plan_id, status)
VALUES ($1, $2::text, NULLIF($3::text, ''), COALESCE($5::text, $7::text), COALESCE($6::text, 'none'))
ON CONFLICT (tenant_id) DO UPDATE SET
    customer_id     = COALESCE(billing_profiles.customer_id, EXCLUDED.customer_id),
    subscription_id = CASE WHEN $4::boolean THEN NULLIF($3::text, '') ELSE billing_profiles.subscription_id END,
    plan_id         = COALESCE($5::text, billing_profiles.plan_id),
    status          = COALESCE($6::text, billing_profiles.status),
    updated_at      = GREATEST(billing_profiles.updated_at, now())
RETURNING ` + profileColumns

func (s *PostgresStore) Apply(ctx context.Context, tenantID uuid.UUID, change subscription.ProfileChange, free subscription.PlanID) (*subscription.BillingProfile, error) {
	customer, subID, setSub, plan, status := changeArgs(change)
	return scanProfile(s.db.QueryRow(ctx, applySQL,
		tenantID, customer, subID, setSub, plan, status, string(free)))
}

const applyByCustomerSQL = `
UPDATE billing_profiles SET
    subscription_id = CASE WHEN $3::boolean THEN NULLIF($2::text, '') ELSE subscription_id END,
    plan_id         = COALESCE($4::text, plan_id),
    status          = COALESCE($5::text, status),
    updated_at      = GREATEST(updated_at, now())
WHERE customer_id = $1
RETURNING ` + profileColumns

func (s *PostgresStore) ApplyByCustomerID(ctx context.Context, customerID string, change subscription.ProfileChange) (*subscription.BillingProfile, error) {
	if customerID == "" {
		return nil, subscription.ErrProfileNotFound
	}
	_, subID, setSub, plan, status := changeArgs(change)
	return scanProfile(s.db.QueryRow(ctx, applyByCustomerSQL,
		customerID, subID, setSub, plan, status))
}

// Each pages through profiles by tenant id so no connection is held while
// fn runs.
func (s *PostgresStore) Each(ctx context.Context, fn func(subscription.BillingProfile) error) error {
	after := uuid.Nil
	for {
		rows, err := s.db.Query(ctx,
			`SELECT `+profileColumns+` FROM billing_profiles WHERE tenant_id > $1 ORDER BY tenant_id LIMIT $2`,
			after, eachBatchSize)
		if err != nil {
			return err
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (subscription.BillingProfile, error) {
			p, err := scanProfile(row)
			if err != nil {
				return subscription.BillingProfile{}, err
			}
			return *p, nil
		})
		if err != nil {
			return err
		}

		for _, p := range batch {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(batch) < eachBatchSize {
			return nil
		}
		after = batch[len(batch)-1].TenantID
	}
}

func (s *PostgresStore) CountActive(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, countActiveSQL, tenantID).Scan(&n)
	return n, err
}

const archiveNewestSQL = `
UPDATE managed_resources SET status = 'archived', archived_at = now()
WHERE id IN (
    SELECT id FROM managed_resources
    WHERE tenant_id = $1 AND status = 'active'
    ORDER BY created_at DESC, id DESC
    LIMIT $2
    FOR UPDATE
)
RETURNING id`

func (s *PostgresStore) ArchiveNewest(ctx context.Context, tenantID uuid.UUID, n int64) ([]uuid.UUID, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, archiveNewestSQL, tenantID, n)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

const countActiveSQL = `SELECT count(*) FROM managed_resources WHERE tenant_id = $1 AND status = 'active'`

// ArchiveOverLimit counts and archives inside one transaction holding a
// per-tenant advisory lock. Resource inserts do not take the lock.
func (s *PostgresStore) ArchiveOverLimit(ctx context.Context, tenantID uuid.UUID, limit int64) (count int64, archived []uuid.UUID, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::uuid::text, 0))`, tenantID); err != nil {
		return 0, nil, err
	}
	if err = tx.QueryRow(ctx, countActiveSQL, tenantID).Scan(&count); err != nil {
		return 0, nil, err
	}
	if count > limit {
		rows, qerr := tx.Query(ctx, archiveNewestSQL, tenantID, count-limit)
		if qerr != nil {
			err = qerr
			return 0, nil, err
		}
		if archived, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID]); err != nil {
			return 0, nil, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, nil, err
	}
	return count, archived, nil
}

// CreateResource inserts an active resource for the tenant.
func (s *PostgresStore) CreateResource(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx,
		`INSERT INTO managed_resources (id, tenant_id, status) VALUES ($1, $2, 'active')`,
		id, tenantID)
	if err != nil {
		return uuid.Nil, errors.Join(errors.New("failed to create resource"), err)
	}
	return id, nil
}
