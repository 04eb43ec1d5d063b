package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, req subscription.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.CheckoutSession), args.Error(1)
}

func (m *mockProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*subscription.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.CheckoutSession), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (subscription.Event, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(subscription.Event), args.Error(1)
}

func (m *mockProvider) SignatureHeader() string { return "X-Test-Signature" }

func (m *mockProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockProvider) SchedulePlanChange(ctx context.Context, subscriptionID string, prices map[subscription.BillingCycle]string) (time.Time, error) {
	args := m.Called(ctx, subscriptionID, prices)
	return args.Get(0).(time.Time), args.Error(1)
}

type recordingNotifier struct {
	mu            sync.Mutex
	trialEnding   []uuid.UUID
	paymentFailed []uuid.UUID
}

func (n *recordingNotifier) TrialEnding(_ context.Context, tenantID uuid.UUID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trialEnding = append(n.trialEnding, tenantID)
	return nil
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, tenantID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paymentFailed = append(n.paymentFailed, tenantID)
	return nil
}

const (
	priceProMonthly      = "price_pro_m"
	priceProYearly       = "price_pro_y"
	priceBusinessMonthly = "price_biz_m"
	priceBusinessYearly  = "price_biz_y"
)

func testPlans() []subscription.Plan {
	return []subscription.Plan{
		{
			ID:            "start",
			Name:          "Start",
			Free:          true,
			ResourceLimit: 3,
			FeePercent:    decimal.NewFromInt(8),
			Features:      []subscription.Feature{"checkout"},
		},
		{
			ID:            "pro",
			Name:          "Pro",
			ResourceLimit: 10,
			FeePercent:    decimal.NewFromInt(4),
			PriceIDs: map[subscription.BillingCycle]string{
				subscription.CycleMonthly: priceProMonthly,
				subscription.CycleYearly:  priceProYearly,
			},
			Features: []subscription.Feature{"checkout", "custom_domain"},
		},
		{
			ID:            "business",
			Name:          "Business",
			ResourceLimit: subscription.Unlimited,
			FeePercent:    decimal.NewFromInt(1),
			PriceIDs: map[subscription.BillingCycle]string{
				subscription.CycleMonthly: priceBusinessMonthly,
				subscription.CycleYearly:  priceBusinessYearly,
			},
			Features: []subscription.Feature{"checkout", "custom_domain", "api"},
		},
	}
}

func testCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()
	c, err := subscription.NewCatalog(testPlans()...)
	require.NoError(t, err)
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc      subscription.Service
	provider *mockProvider
	store    *subscription.MemoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...subscription.ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		provider: &mockProvider{},
		store:    subscription.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}
	opts = append([]subscription.ServiceOption{
		subscription.WithLogger(discardLogger()),
		subscription.WithNotifier(f.notifier),
	}, opts...)
	f.svc = subscription.NewService(testCatalog(t), f.provider, f.store, f.store, opts...)
	return f
}

// seedResources creates n active resources, one minute apart, oldest first.
func seedResources(store *subscription.MemoryStore, tenantID uuid.UUID, n int) []uuid.UUID {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 0, n)
	for i := range n {
		ids = append(ids, store.AddResource(tenantID, base.Add(time.Duration(i)*time.Minute)))
	}
	return ids
}

func activeIDs(store *subscription.MemoryStore, tenantID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, r := range store.Resources(tenantID) {
		if r.Status == subscription.ResourceActive {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// bindTenant puts a tenant on a plan with a customer and subscription bound.
func bindTenant(t *testing.T, store *subscription.MemoryStore, tenantID uuid.UUID, customerID, subID string, plan subscription.PlanID) {
	t.Helper()
	status := subscription.StatusActive
	_, err := store.Apply(context.Background(), tenantID, subscription.ProfileChange{
		CustomerID:     &customerID,
		SubscriptionID: &subID,
		PlanID:         &plan,
		Status:         &status,
	}, "start")
	require.NoError(t, err)
}
