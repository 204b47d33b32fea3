package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanCatalog(t *testing.T) {
	catalog := DefaultPlanCatalog()

	monthly, ok := catalog.Lookup("monthly")
	require.True(t, ok)
	assert.Equal(t, int64(49900), monthly.AmountMinor)
	assert.Equal(t, "INR", monthly.Currency)
	assert.Equal(t, 30, monthly.DurationDays())

	yearly, ok := catalog.Lookup("yearly")
	require.True(t, ok)
	assert.Equal(t, int64(499900), yearly.AmountMinor)
	assert.Equal(t, 365, yearly.DurationDays())

	_, ok = catalog.Lookup("lifetime")
	assert.False(t, ok)
}

func TestPlanCatalogListOrder(t *testing.T) {
	catalog := NewPlanCatalog(
		Plan{ID: "b", AmountMinor: 200, Currency: "INR", Duration: 24 * time.Hour},
		Plan{ID: "a", AmountMinor: 100, Currency: "INR", Duration: 24 * time.Hour},
	)

	plans := catalog.List()
	require.Len(t, plans, 2)
	assert.Equal(t, "b", plans[0].ID)
	assert.Equal(t, "a", plans[1].ID)
}

func TestFormattedAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   string
	}{
		{"whole rupees", 49900, "INR 499.00"},
		{"with paise", 49950, "INR 499.50"},
		{"single paise", 101, "INR 1.01"},
		{"zero", 0, "INR 0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Plan{AmountMinor: tt.amount, Currency: "INR"}
			assert.Equal(t, tt.want, p.FormattedAmount())
		})
	}
}
