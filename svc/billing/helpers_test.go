package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/billingcore/pkg/jwt"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
	"github.com/dmitrymomot/billingcore/svc/billing"
)

const testWebhookSecret = "whsec_test_secret"

var periodEnd = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeProvider verifies webhooks with the real Stripe verifier and keeps
// customers and checkout sessions in memory.
type fakeProvider struct {
	*subscription.StripeProvider

	mu        sync.Mutex
	customers int
	sessions  map[string]*subscription.CheckoutSession
	cancelled []string
	scheduled []string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	sp, err := subscription.NewStripeProvider(subscription.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)
	return &fakeProvider{StripeProvider: sp, sessions: make(map[string]*subscription.CheckoutSession)}
}

func (f *fakeProvider) CreateCustomer(context.Context, subscription.CustomerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return fmt.Sprintf("cus_%d", f.customers), nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("cs_%d", len(f.sessions)+1)
	s := &subscription.CheckoutSession{
		ID:         id,
		URL:        "https://checkout.test/" + id,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata.Map(),
	}
	f.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, sessionID string) (*subscription.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, subscription.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeProvider) CancelAtPeriodEnd(_ context.Context, subscriptionID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, subscriptionID)
	return periodEnd, nil
}

func (f *fakeProvider) SchedulePlanChange(_ context.Context, subscriptionID string, _ map[subscription.BillingCycle]string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, subscriptionID)
	return periodEnd, nil
}

func (f *fakeProvider) markPaid(sessionID, subscriptionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	s.Paid = true
	s.SubscriptionID = subscriptionID
}

type testEnv struct {
	router   http.Handler
	svc      subscription.Service
	store    *subscription.MemoryStore
	provider *fakeProvider
	tokens   *jwt.Service
	metrics  *billing.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testPlansYAML = `
plans:
  - id: start
    name: Start
    free: true
    resource_limit: 3
    fee_percent: "8"
  - id: pro
    name: Pro
    resource_limit: 10
    fee_percent: "4"
    amounts:
      monthly: "29.00"
    prices:
      monthly: price_pro_m
      yearly: price_pro_y
  - id: business
    name: Business
    resource_limit: unlimited
    fee_percent: "1"
    prices:
      monthly: price_biz_m
      yearly: price_biz_y
`

func testConfig(t *testing.T) billing.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPlansYAML), 0o600))
	return billing.Config{
		AppURL:         "https://app.test",
		Store:          billing.StoreMemory,
		PlansFile:      path,
		RequestTimeout: time.Second,
		MaxWebhookBody: 1 << 16,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	catalog, err := cfg.LoadCatalog(context.Background())
	require.NoError(t, err)

	provider := newFakeProvider(t)
	store := subscription.NewMemoryStore()
	metrics := billing.NewMetrics(prometheus.NewRegistry())
	svc := subscription.NewService(catalog, provider, store, store,
		subscription.WithLogger(discardLogger()),
		subscription.WithObserver(metrics),
	)
	tokens, err := jwt.New([]byte("test-secret"), "", time.Hour)
	require.NoError(t, err)

	return &testEnv{
		router: billing.NewRouter(billing.RouterDeps{
			Handlers: billing.NewHandlers(svc, cfg, discardLogger()),
			Tokens:   tokens,
			Metrics:  metrics,
			Log:      discardLogger(),
		}),
		svc:      svc,
		store:    store,
		provider: provider,
		tokens:   tokens,
		metrics:  metrics,
	}
}

func (e *testEnv) token(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	tok, err := e.tokens.Issue(tenantID, "owner@example.com")
	require.NoError(t, err)
	return tok
}

// do sends a request; an empty token sends it unauthenticated.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// webhook posts a Stripe event with a signature made with secret.
func (e *testEnv) webhook(t *testing.T, eventType string, object map[string]any, secret string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":     "evt_" + uuid.NewString(),
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/billing", bytes.NewReader(payload))
	if secret != "" {
		req.Header.Set("Stripe-Signature", webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    secret,
			Timestamp: time.Now(),
		}).Header)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}
