package subscription_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

func TestService_Fee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	amount := decimal.RequireFromString("125.50")

	tests := []struct {
		name     string
		plan     subscription.PlanID
		wantPlan subscription.PlanID
		wantFee  string
		fallback bool
	}{
		{"default profile uses free plan", "", "start", "10.04", false},
		{"paid plan", "pro", "pro", "5.02", false},
		{"unlimited plan", "business", "business", "1.26", false},
		{"plan missing from catalog", "legacy", "start", "10.04", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tenantID := uuid.New()
			if tt.plan != "" {
				bindTenant(t, f.store, tenantID, "cus_1", "sub_1", tt.plan)
			}

			q, err := f.svc.Fee(ctx, tenantID, amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan, q.PlanID)
			assert.Equal(t, tt.wantFee, q.Fee.StringFixed(2))
			assert.True(t, amount.Equal(q.Amount))
			assert.Equal(t, tt.fallback, q.Fallback)
		})
	}

	t.Run("negative amount", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.Fee(ctx, uuid.New(), decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, subscription.ErrInvalidAmount)
	})
}
