package subscription_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

type mapSessionCache struct {
	mu sync.Mutex
	m  map[string]*subscription.VerifyResult
}

func (c *mapSessionCache) Get(_ context.Context, id string) (*subscription.VerifyResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[id]
	return r, ok
}

func (c *mapSessionCache) Set(_ context.Context, id string, r *subscription.VerifyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = r
}

func TestService_VerifyCheckout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unpaid session changes nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenantID := uuid.New()
		session := checkoutEvent(tenantID, "pro").Session
		session.Paid = false
		f.provider.On("GetCheckoutSession", mock.Anything, "cs_1").Return(&session, nil).Once()

		res, err := f.svc.VerifyCheckout(ctx, tenantID, "cs_1")
		require.NoError(t, err)
		assert.False(t, res.Paid)

		_, err = f.store.Get(ctx, tenantID)
		assert.ErrorIs(t, err, subscription.ErrProfileNotFound)
	})

	t.Run("paid session converges with webhook", func(t *testing.T) {
		t.Parallel()
		viaVerify, viaWebhook := newFixture(t), newFixture(t)
		tenantID := uuid.New()
		ev := checkoutEvent(tenantID, "pro")
		session := ev.Session
		viaVerify.provider.On("GetCheckoutSession", mock.Anything, "cs_1").Return(&session, nil)

		res, err := viaVerify.svc.VerifyCheckout(ctx, tenantID, "cs_1")
		require.NoError(t, err)
		require.True(t, res.Paid)
		require.NotNil(t, res.Profile)

		require.NoError(t, viaWebhook.svc.HandleEvent(ctx, ev))

		a, _ := viaVerify.svc.Profile(ctx, tenantID)
		b, _ := viaWebhook.svc.Profile(ctx, tenantID)
		assert.Equal(t, a.PlanID, b.PlanID)
		assert.Equal(t, a.SubscriptionID, b.SubscriptionID)
		assert.Equal(t, a.CustomerID, b.CustomerID)
		assert.Equal(t, a.Status, b.Status)

		// Webhook arriving after verification does not change the outcome.
		require.NoError(t, viaVerify.svc.HandleEvent(ctx, ev))
		c, _ := viaVerify.svc.Profile(ctx, tenantID)
		assert.Equal(t, a.PlanID, c.PlanID)
		assert.Equal(t, a.Status, c.Status)
	})

	t.Run("other tenant's session is not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		session := checkoutEvent(uuid.New(), "pro").Session
		f.provider.On("GetCheckoutSession", mock.Anything, "cs_1").Return(&session, nil).Once()

		_, err := f.svc.VerifyCheckout(ctx, uuid.New(), "cs_1")
		assert.ErrorIs(t, err, subscription.ErrSessionNotFound)
	})

	t.Run("paid without subscription is pending", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenantID := uuid.New()
		session := checkoutEvent(tenantID, "pro").Session
		session.SubscriptionID = ""
		f.provider.On("GetCheckoutSession", mock.Anything, "cs_1").Return(&session, nil).Once()

		res, err := f.svc.VerifyCheckout(ctx, tenantID, "cs_1")
		require.NoError(t, err)
		assert.False(t, res.Paid)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("GetCheckoutSession", mock.Anything, "cs_missing").
			Return(nil, subscription.ErrSessionNotFound).Once()

		_, err := f.svc.VerifyCheckout(ctx, uuid.New(), "cs_missing")
		assert.ErrorIs(t, err, subscription.ErrSessionNotFound)
		assert.True(t, subscription.IsNotFound(err))

		_, err = f.svc.VerifyCheckout(ctx, uuid.New(), "")
		assert.ErrorIs(t, err, subscription.ErrSessionNotFound)
	})

	t.Run("paid result is cached", func(t *testing.T) {
		t.Parallel()
		cache := &mapSessionCache{m: map[string]*subscription.VerifyResult{}}
		f := newFixture(t, subscription.WithSessionCache(cache))
		tenantID := uuid.New()
		session := checkoutEvent(tenantID, "pro").Session
		f.provider.On("GetCheckoutSession", mock.Anything, "cs_1").Return(&session, nil).Once()

		_, err := f.svc.VerifyCheckout(ctx, tenantID, "cs_1")
		require.NoError(t, err)
		res, err := f.svc.VerifyCheckout(ctx, tenantID, "cs_1")
		require.NoError(t, err)
		assert.True(t, res.Paid)

		_, err = f.svc.VerifyCheckout(ctx, uuid.New(), "cs_1")
		assert.ErrorIs(t, err, subscription.ErrSessionNotFound)

		f.provider.AssertNumberOfCalls(t, "GetCheckoutSession", 1)
	})
}
