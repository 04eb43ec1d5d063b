package billing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
	"github.com/dmitrymomot/billingcore/svc/billing"
)

func TestNewApp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tokens, err := jwt.New([]byte("secret"), "", time.Hour)
	require.NoError(t, err)

	t.Run("memory store with redis", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.SweepSchedule = "@hourly"
		_, mr := newRedisStorage(t)

		app, err := billing.NewApp(ctx, billing.Deps{
			Config:      cfg,
			Tokens:      tokens,
			Provider:    newFakeProvider(t),
			Redis:       redisClient(t, mr.Addr()),
			RedisPrefix: "app:",
			Log:         discardLogger(),
		})
		require.NoError(t, err)
		require.NotNil(t, app.Router)
		require.NotNil(t, app.Sweeper)

		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
	})

	t.Run("checkout is rate limited per tenant", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.CheckoutBurst = 1
		cfg.CheckoutRefill = time.Hour

		app, err := billing.NewApp(t.Context(), billing.Deps{
			Config:   cfg,
			Tokens:   tokens,
			Provider: newFakeProvider(t),
			Log:      discardLogger(),
		})
		require.NoError(t, err)

		checkout := func(tenantID uuid.UUID) *httptest.ResponseRecorder {
			tok, err := tokens.Issue(tenantID, "owner@example.com")
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodPost, "/api/checkout",
				strings.NewReader(`{"plan_id":"pro","billing_cycle":"monthly"}`))
			req.Header.Set("Authorization", "Bearer "+tok)
			rec := httptest.NewRecorder()
			app.Router.ServeHTTP(rec, req)
			return rec
		}

		tenantID := uuid.New()
		assert.Equal(t, http.StatusOK, checkout(tenantID).Code)

		rec := checkout(tenantID)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "rate_limited", decode[errorEnvelope](t, rec).Error.Code)

		assert.Equal(t, http.StatusOK, checkout(uuid.New()).Code, "other tenants are unaffected")
	})

	t.Run("without tokens there is no router", func(t *testing.T) {
		t.Parallel()
		app, err := billing.NewApp(ctx, billing.Deps{Config: testConfig(t), Provider: newFakeProvider(t)})
		require.NoError(t, err)
		assert.Nil(t, app.Router)
		assert.Nil(t, app.Sweeper)
	})

	t.Run("postgres store needs a pool", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Store = billing.StorePostgres
		_, err := billing.NewApp(ctx, billing.Deps{Config: cfg, Provider: newFakeProvider(t)})
		assert.ErrorIs(t, err, billing.ErrUnknownStore)
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Store = "sqlite"
		_, err := billing.NewApp(ctx, billing.Deps{Config: cfg, Provider: newFakeProvider(t)})
		assert.ErrorIs(t, err, billing.ErrUnknownStore)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.SweepSchedule = "never"
		_, err := billing.NewApp(ctx, billing.Deps{Config: cfg, Provider: newFakeProvider(t)})
		assert.ErrorIs(t, err, billing.ErrInvalidSchedule)
	})
}

func TestNewProvider(t *testing.T) {
	t.Parallel()
	_, err := billing.NewProvider("braintree")
	assert.ErrorIs(t, err, billing.ErrUnknownProvider)
}

func TestConfigURLs(t *testing.T) {
	t.Parallel()
	cfg := billing.Config{AppURL: "https://app.test"}
	assert.Equal(t, "https://app.test/billing/success?session_id={CHECKOUT_SESSION_ID}", cfg.SuccessURL())
	assert.Equal(t, "https://app.test/billing", cfg.CancelURL())
}

func TestNewQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("needs no provider", func(t *testing.T) {
		t.Parallel()
		q, err := billing.NewQuota(ctx, billing.Deps{Config: testConfig(t), Log: discardLogger()})
		require.NoError(t, err)

		plan, archived, err := q.EnforceTenant(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("start"), plan)
		assert.Zero(t, archived)

		report, err := q.EnforceAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Tenants)
	})

	t.Run("enforces stored profile plan", func(t *testing.T) {
		t.Parallel()
		q, err := billing.NewQuota(ctx, billing.Deps{Config: testConfig(t), Log: discardLogger()})
		require.NoError(t, err)

		tenantID := uuid.New()
		_, err = q.Profiles.Apply(ctx, tenantID, subscription.ProfileChange{PlanID: ptr(subscription.PlanID("pro"))}, "start")
		require.NoError(t, err)

		plan, _, err := q.EnforceTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("pro"), plan)

		report, err := q.EnforceAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Tenants)
		assert.Zero(t, report.Failed)
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Store = "sqlite"
		_, err := billing.NewQuota(ctx, billing.Deps{Config: cfg})
		assert.ErrorIs(t, err, billing.ErrUnknownStore)
	})
}
