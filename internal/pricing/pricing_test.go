package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteAppliesTaxHalfUp(t *testing.T) {
	totals := Quote([]Line{
		{Qty: 2, UnitPriceCents: 299},
		{Qty: 1, UnitPriceCents: 549},
	}, true, 8)

	assert.Equal(t, int64(1147), totals.SubtotalCents)
	assert.Equal(t, int64(92), totals.TaxCents)
	assert.Equal(t, int64(1239), totals.TotalCents)
}

func TestQuoteTaxDisabled(t *testing.T) {
	totals := Quote([]Line{{Qty: 3, UnitPriceCents: 1000}}, false, 11)

	assert.Equal(t, int64(3000), totals.SubtotalCents)
	assert.Zero(t, totals.TaxCents)
	assert.Equal(t, totals.SubtotalCents, totals.TotalCents)
}

func TestQuoteSkipsNonPositiveQty(t *testing.T) {
	totals := Quote([]Line{
		{Qty: 0, UnitPriceCents: 5000},
		{Qty: -2, UnitPriceCents: 5000},
		{Qty: 1, UnitPriceCents: 250},
	}, true, 10)

	assert.Equal(t, int64(250), totals.SubtotalCents)
	assert.Equal(t, int64(25), totals.TaxCents)
	assert.Equal(t, totals.SubtotalCents+totals.TaxCents, totals.TotalCents)
}

func TestLineTaxCentsRounding(t *testing.T) {
	cases := []struct {
		amount int64
		rate   float64
		want   int64
	}{
		{amount: 1147, rate: 8, want: 92},
		{amount: 50, rate: 11, want: 6},
		{amount: 45, rate: 11, want: 5},
		{amount: 1000, rate: 7.25, want: 73},
		{amount: 0, rate: 10, want: 0},
		{amount: 999, rate: 0, want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LineTaxCents(tc.amount, tc.rate), "amount=%d rate=%v", tc.amount, tc.rate)
	}
}

func TestChange(t *testing.T) {
	change, err := Change(1239, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(761), change)

	change, err = Change(1239, 1239)
	require.NoError(t, err)
	assert.Zero(t, change)

	_, err = Change(1239, 1200)
	require.ErrorIs(t, err, ErrInsufficientTender)
}

func TestWeightedCostCents(t *testing.T) {
	assert.Equal(t, int64(1500), WeightedCostCents(1000, 10, 2000, 10))
	assert.Equal(t, int64(1333), WeightedCostCents(1000, 20, 2000, 10))
	assert.Equal(t, int64(800), WeightedCostCents(1000, 0, 800, 5))
	assert.Equal(t, int64(800), WeightedCostCents(1000, -3, 800, 5))
	assert.Equal(t, int64(1000), WeightedCostCents(1000, 4, 800, 0))
}
