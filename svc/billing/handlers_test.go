package billing_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

type checkoutBody struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

type verifyBody struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Subscription string `json:"subscription"`
	CustomerID   string `json:"customerId"`
	PlanID       string `json:"plan_id"`
}

func TestCheckout_RequiresAuthentication(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", "", map[string]string{"plan_id": "pro", "billing_cycle": "monthly"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[errorEnvelope](t, rec).Error.Code)

	rec = env.do(t, http.MethodGet, "/api/billing/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckout_RejectsInvalidPlans(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.token(t, uuid.New())

	tests := []struct {
		name string
		body any
		code string
	}{
		{"free plan", map[string]string{"plan_id": "start", "billing_cycle": "monthly"}, "invalid_plan"},
		{"unknown plan", map[string]string{"plan_id": "enterprise", "billing_cycle": "monthly"}, "invalid_plan"},
		{"bad cycle", map[string]string{"plan_id": "pro", "billing_cycle": "weekly"}, "invalid_plan"},
		{"unknown field", map[string]string{"plan": "pro"}, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/checkout", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[errorEnvelope](t, rec).Error.Code)
		})
	}
	assert.Zero(t, env.provider.customers, "no provider call for invalid input")
}

func TestCheckout_CreateAndVerify(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tenantID := uuid.New()
	token := env.token(t, tenantID)

	rec := env.do(t, http.MethodPost, "/api/checkout", token, map[string]string{"plan_id": "pro", "billing_cycle": "yearly"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode[checkoutBody](t, rec)
	assert.NotEmpty(t, session.SessionID)
	assert.True(t, strings.HasPrefix(session.SessionURL, "https://checkout.test/"))

	rec = env.do(t, http.MethodPost, "/api/checkout", token, map[string]string{"plan_id": "business", "billing_cycle": "monthly"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.provider.customers, "customer is created once per tenant")

	verifyPath := "/api/checkout/verify?session_id=" + session.SessionID
	rec = env.do(t, http.MethodGet, verifyPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[verifyBody](t, rec)
	assert.False(t, pending.Success)
	assert.NotEmpty(t, pending.Message)

	env.provider.markPaid(session.SessionID, "sub_1")
	rec = env.do(t, http.MethodGet, verifyPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decode[verifyBody](t, rec)
	assert.True(t, paid.Success)
	assert.Equal(t, "sub_1", paid.Subscription)
	assert.Equal(t, "cus_1", paid.CustomerID)
	assert.Equal(t, "pro", paid.PlanID)

	rec = env.do(t, http.MethodGet, "/api/billing/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[subscription.BillingProfile](t, rec)
	assert.Equal(t, subscription.PlanID("pro"), profile.PlanID)
	assert.Equal(t, subscription.StatusActive, profile.Status)
}

func TestVerify_Errors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	owner := uuid.New()

	rec := env.do(t, http.MethodPost, "/api/checkout", env.token(t, owner), map[string]string{"plan_id": "pro", "billing_cycle": "monthly"})
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[checkoutBody](t, rec)

	other := env.token(t, uuid.New())
	rec = env.do(t, http.MethodGet, "/api/checkout/verify?session_id="+session.SessionID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "sessions of other tenants are not visible")

	rec = env.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_missing", other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/checkout/verify", other, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tenantID := uuid.New()
	_, err := env.store.BindCustomer(t.Context(), tenantID, "cus_hook", "start")
	require.NoError(t, err)

	t.Run("missing signature", func(t *testing.T) {
		rec := env.webhook(t, "invoice.paid", map[string]any{"id": "in_1", "customer": "cus_hook"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_webhook", decode[errorEnvelope](t, rec).Error.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := env.webhook(t, "customer.subscription.deleted", map[string]any{"id": "sub_1", "customer": "cus_hook"}, "whsec_other")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("subscription lifecycle", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			env.store.AddResource(tenantID, time.Now().Add(time.Duration(i)*time.Minute))
		}

		rec := env.webhook(t, "customer.subscription.updated", map[string]any{
			"id":       "sub_1",
			"customer": "cus_hook",
			"status":   "active",
			"items":    map[string]any{"data": []any{map[string]any{"price": map[string]any{"id": "price_biz_m"}}}},
		}, testWebhookSecret)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())

		p, err := env.svc.Profile(t.Context(), tenantID)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("business"), p.PlanID)

		rec = env.webhook(t, "customer.subscription.deleted", map[string]any{"id": "sub_1", "customer": "cus_hook"}, testWebhookSecret)
		require.Equal(t, http.StatusOK, rec.Code)

		p, err = env.svc.Profile(t.Context(), tenantID)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("start"), p.PlanID)
		assert.Equal(t, subscription.StatusCanceled, p.Status)

		u, err := env.svc.Usage(t.Context(), tenantID)
		require.NoError(t, err)
		assert.EqualValues(t, 3, u.Active, "excess resources archived on downgrade")
	})

	t.Run("checkout waits for payment", func(t *testing.T) {
		buyer := uuid.New()
		session := map[string]any{
			"id":             "cs_async",
			"customer":       "cus_async",
			"subscription":   "sub_async",
			"payment_status": "unpaid",
			"metadata": subscription.CheckoutMetadata{
				TenantID: buyer,
				PlanID:   "pro",
				Cycle:    subscription.CycleMonthly,
			}.Map(),
		}

		rec := env.webhook(t, "checkout.session.completed", session, testWebhookSecret)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		p, err := env.svc.Profile(t.Context(), buyer)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("start"), p.PlanID, "unpaid checkout grants nothing")
		assert.Equal(t, subscription.StatusNone, p.Status)

		session["payment_status"] = "paid"
		rec = env.webhook(t, "checkout.session.async_payment_succeeded", session, testWebhookSecret)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		p, err = env.svc.Profile(t.Context(), buyer)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("pro"), p.PlanID)
		assert.Equal(t, subscription.StatusActive, p.Status)
		assert.Equal(t, "sub_async", p.SubscriptionID)
	})

	t.Run("unknown event is acknowledged", func(t *testing.T) {
		rec := env.webhook(t, "customer.created", map[string]any{"id": "cus_new"}, testWebhookSecret)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestChangePlan(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tenantID := uuid.New()
	token := env.token(t, tenantID)

	rec := env.do(t, http.MethodPost, "/api/billing/plan", token, map[string]string{"plan_id": "pro"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "upgrades go through checkout")

	rec = env.do(t, http.MethodPost, "/api/billing/plan", token, map[string]string{"plan_id": "start"})
	require.Equal(t, http.StatusOK, rec.Code)
	local := decode[map[string]any](t, rec)
	assert.Equal(t, true, local["immediate"])

	_, err := env.store.Apply(t.Context(), tenantID, subscription.ProfileChange{
		SubscriptionID: ptr("sub_9"),
		PlanID:         ptr(subscription.PlanID("business")),
		Status:         ptr(subscription.StatusActive),
	}, "start")
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/api/billing/plan", token, map[string]string{"plan_id": "pro"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scheduled := decode[map[string]any](t, rec)
	assert.Equal(t, false, scheduled["immediate"])
	assert.Equal(t, "business", scheduled["from"])
	assert.Equal(t, "pro", scheduled["to"])
	assert.Equal(t, []string{"sub_9"}, env.provider.scheduled)

	rec = env.do(t, http.MethodPost, "/api/billing/plan", token, map[string]string{"plan_id": "start"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sub_9"}, env.provider.cancelled)
}

func TestUsageAndPlans(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tenantID := uuid.New()
	env.store.AddResource(tenantID, time.Now())
	env.store.AddResource(tenantID, time.Now())

	rec := env.do(t, http.MethodGet, "/api/billing/usage", env.token(t, tenantID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"plan_id":"start","active":2,"limit":3,"percent":66}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"id":"business"`)
	assert.NotContains(t, body, "price_pro_m", "provider price ids stay private")
}

func TestFee(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tenantID := uuid.New()
	token := env.token(t, tenantID)

	rec := env.do(t, http.MethodGet, "/api/billing/fee?amount=125.50", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[map[string]any](t, rec)
	assert.Equal(t, "start", quote["plan_id"])
	assert.Equal(t, "10.04", quote["fee"])
	assert.Nil(t, quote["fallback"])

	_, err := env.store.Apply(t.Context(), tenantID, subscription.ProfileChange{
		PlanID: ptr(subscription.PlanID("retired")),
	}, "start")
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/billing/fee?amount=125.50", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote = decode[map[string]any](t, rec)
	assert.Equal(t, "start", quote["plan_id"], "unknown plan is charged the free plan's fee")
	assert.Equal(t, "10.04", quote["fee"])
	assert.Equal(t, true, quote["fallback"])

	for _, amount := range []string{"", "abc", "-5"} {
		rec = env.do(t, http.MethodGet, "/api/billing/fee?amount="+amount, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
	}

	rec = env.do(t, http.MethodGet, "/api/billing/fee?amount=10", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/checkout", env.token(t, uuid.New()), map[string]string{"plan_id": "pro", "billing_cycle": "monthly"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `billing_checkouts_created_total{cycle="monthly",plan="pro"} 1`)
	assert.Contains(t, rec.Body.String(), `billing_http_requests_total{method="POST",route="/api/checkout",status="200"} 1`)
}

func ptr[T any](v T) *T { return &v }
