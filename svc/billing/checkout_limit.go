package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingcore/pkg/ratelimiter"
)

// CheckoutLimitKey is the bucket key of a tenant's checkout throttle.
func CheckoutLimitKey(tenantID uuid.UUID) string {
	return "checkout:" + tenantID.String()
}

// CheckoutLimit gives operators access to the shared checkout buckets.
type CheckoutLimit struct {
	bucket *ratelimiter.Bucket
}

// NewCheckoutLimit opens the checkout throttle kept in Redis. In-process
// buckets belong to a single server and cannot be inspected from outside.
func NewCheckoutLimit(cfg Config, client goredis.UniversalClient, prefix string) (*CheckoutLimit, error) {
	if cfg.CheckoutBurst <= 0 {
		return nil, fmt.Errorf("%w: checkout burst is 0", ErrCheckoutLimitDisabled)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: checkout buckets are only shared through redis", ErrCheckoutLimitDisabled)
	}
	bucket, err := checkoutLimit(context.Background(), cfg, ratelimiter.NewRedisStore(client, prefix))
	if err != nil {
		return nil, err
	}
	return &CheckoutLimit{bucket: bucket}, nil
}

// Status reports the tenant's bucket without taking a token.
func (l *CheckoutLimit) Status(ctx context.Context, tenantID uuid.UUID) (*ratelimiter.Result, error) {
	return l.bucket.Status(ctx, CheckoutLimitKey(tenantID))
}

// Reset refills the tenant's bucket.
func (l *CheckoutLimit) Reset(ctx context.Context, tenantID uuid.UUID) error {
	return l.bucket.Reset(ctx, CheckoutLimitKey(tenantID))
}
