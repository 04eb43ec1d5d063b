package subscription

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Catalog is the immutable, process-wide set of plans. Lookups never
// substitute one plan for another.
type Catalog struct {
	plans   []Plan
	byID    map[PlanID]int
	byPrice map[string]int
	free    int
}

// NewCatalog validates plans and builds a catalog. Order matters: plans are
// ranked from the first (lowest tier) to the last.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("catalog has no plans"))
	}

	c := &Catalog{
		plans:   make([]Plan, 0, len(plans)),
		byID:    make(map[PlanID]int, len(plans)),
		byPrice: make(map[string]int),
		free:    -1,
	}
	hundred := decimal.NewFromInt(100)
	unlimited := 0

	for i, p := range plans {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan #%d has empty id", i))
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %q", p.ID))
		}
		if p.ResourceLimit < Unlimited {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %q has negative resource limit %d", p.ID, p.ResourceLimit))
		}
		if p.FeePercent.IsNegative() || p.FeePercent.GreaterThan(hundred) {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %q fee %s is outside [0, 100]", p.ID, p.FeePercent))
		}
		if p.IsUnlimited() {
			unlimited++
		}

		if p.Free {
			if c.free >= 0 {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plans %q and %q are both free", c.plans[c.free].ID, p.ID))
			}
			if len(p.PriceIDs) > 0 {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("free plan %q must not carry price ids", p.ID))
			}
			c.free = i
		}

		prices := make(map[BillingCycle]string, len(p.PriceIDs))
		for cycle, priceID := range p.PriceIDs {
			if !cycle.Valid() {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %q has unknown billing cycle %q", p.ID, cycle))
			}
			if priceID == "" {
				continue
			}
			if owner, dup := c.byPrice[priceID]; dup {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("price %q is used by plans %q and %q", priceID, c.plans[owner].ID, p.ID))
			}
			c.byPrice[priceID] = i
			prices[cycle] = priceID
		}

		p.PriceIDs = prices
		p.Features = append([]Feature(nil), p.Features...)
		p.rank = i
		c.byID[p.ID] = i
		c.plans = append(c.plans, p)
	}

	if c.free < 0 {
		return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("catalog has no free plan"))
	}
	if unlimited > 1 {
		return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("more than one plan is unlimited"))
	}

	return c, nil
}

// Lookup returns the plan with the given id.
func (c *Catalog) Lookup(id PlanID) (Plan, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i], true
}

// Free returns the free tier.
func (c *Catalog) Free() Plan {
	return c.plans[c.free]
}

// PriceID resolves the provider price for a plan and billing cycle.
func (c *Catalog) PriceID(id PlanID, cycle BillingCycle) (string, error) {
	p, ok := c.Lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	priceID, ok := p.PriceIDs[cycle]
	if !ok || priceID == "" {
		return "", errors.Join(ErrConfiguration,
			fmt.Errorf("%w: plan %q, cycle %q", ErrPriceNotConfigured, id, cycle))
	}
	return priceID, nil
}

// PlanForPrice is the reverse lookup used when an event only carries a
// provider price id.
func (c *Catalog) PlanForPrice(priceID string) (Plan, bool) {
	i, ok := c.byPrice[priceID]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i], true
}

// LowestPaid returns the first non-free plan in tier order.
func (c *Catalog) LowestPaid() (Plan, bool) {
	for _, p := range c.plans {
		if !p.Free {
			return p, true
		}
	}
	return Plan{}, false
}

// Plans returns a copy of all plans in tier order.
func (c *Catalog) Plans() []Plan {
	return append([]Plan(nil), c.plans...)
}
