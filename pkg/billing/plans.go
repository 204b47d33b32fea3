package billing

import (
	"fmt"
	"time"
)

// Plan describes a purchasable subscription plan. AmountMinor is the price
// in minor currency units (paise for INR).
type Plan struct {
	ID          string        `json:"planId"`
	AmountMinor int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	Duration    time.Duration `json:"-"`
}

// DurationDays returns the plan duration in whole days for API responses.
func (p Plan) DurationDays() int {
	return int(p.Duration / (24 * time.Hour))
}

// FormattedAmount renders the price in major units, e.g. "INR 499.00".
func (p Plan) FormattedAmount() string {
	return fmt.Sprintf("%s %d.%02d", p.Currency, p.AmountMinor/100, p.AmountMinor%100)
}

// PlanCatalog is a read-only mapping from plan id to plan. Lookups have no
// side effects; the only failure mode is an unknown key.
type PlanCatalog struct {
	plans map[string]Plan
	order []string
}

// NewPlanCatalog builds a catalog preserving the given plan order.
func NewPlanCatalog(plans ...Plan) *PlanCatalog {
	c := &PlanCatalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if _, exists := c.plans[p.ID]; exists {
			continue
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c
}

// DefaultPlanCatalog returns the premium upgrade plans.
func DefaultPlanCatalog() *PlanCatalog {
	return NewPlanCatalog(
		Plan{
			ID:          "monthly",
			AmountMinor: 49900, // INR 499
			Currency:    "INR",
			Description: "Premium - Monthly Plan",
			Duration:    30 * 24 * time.Hour,
		},
		Plan{
			ID:          "yearly",
			AmountMinor: 499900, // INR 4999
			Currency:    "INR",
			Description: "Premium - Yearly Plan",
			Duration:    365 * 24 * time.Hour,
		},
	)
}

// Lookup resolves a plan id. The second return is false for unknown ids.
func (c *PlanCatalog) Lookup(planID string) (Plan, bool) {
	p, ok := c.plans[planID]
	return p, ok
}

// List returns all plans in registration order.
func (c *PlanCatalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
