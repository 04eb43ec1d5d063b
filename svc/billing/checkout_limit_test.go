package billing_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/ratelimiter"
	"github.com/dmitrymomot/billingcore/svc/billing"
)

func TestCheckoutLimit(t *testing.T) {
	t.Parallel()
	cfg := billing.Config{CheckoutBurst: 2, CheckoutRefill: time.Hour}

	t.Run("disabled", func(t *testing.T) {
		_, err := billing.NewCheckoutLimit(billing.Config{}, redisClient(t, miniredis.RunT(t).Addr()), "")
		assert.ErrorIs(t, err, billing.ErrCheckoutLimitDisabled)

		_, err = billing.NewCheckoutLimit(cfg, nil, "")
		assert.ErrorIs(t, err, billing.ErrCheckoutLimitDisabled)
	})

	t.Run("shares buckets with the API", func(t *testing.T) {
		ctx := t.Context()
		client := redisClient(t, miniredis.RunT(t).Addr())
		limit, err := billing.NewCheckoutLimit(cfg, client, "test:")
		require.NoError(t, err)

		api, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, "test:"), ratelimiter.Config{
			Capacity:       2,
			RefillRate:     1,
			RefillInterval: time.Hour,
		})
		require.NoError(t, err)

		busy, idle := uuid.New(), uuid.New()
		for range 3 {
			_, err := api.Allow(ctx, billing.CheckoutLimitKey(busy))
			require.NoError(t, err)
		}

		res, err := limit.Status(ctx, busy)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Limit)
		assert.Equal(t, 0, res.Remaining)

		res, err = limit.Status(ctx, idle)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)

		require.NoError(t, limit.Reset(ctx, busy))
		res, err = limit.Status(ctx, busy)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)

		res, err = api.Allow(ctx, billing.CheckoutLimitKey(busy))
		require.NoError(t, err)
		assert.True(t, res.Allowed(), "reset bucket accepts checkouts again")
	})
}
