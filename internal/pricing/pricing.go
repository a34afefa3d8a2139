package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientTender is returned when the amount handed over does not cover the total.
var ErrInsufficientTender = errors.New("tendered amount is below total")

var hundred = decimal.NewFromInt(100)

// Line is one cart row priced in cents.
type Line struct {
	Qty            int
	UnitPriceCents int64
}

// Totals is the result of pricing a cart.
type Totals struct {
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
}

// Quote sums the lines and applies tax when enabled. Lines with a
// non-positive quantity are skipped.
func Quote(lines []Line, taxEnabled bool, taxRatePercent float64) Totals {
	var subtotal int64
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		subtotal += int64(l.Qty) * l.UnitPriceCents
	}
	var tax int64
	if taxEnabled {
		tax = LineTaxCents(subtotal, taxRatePercent)
	}
	return Totals{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
	}
}

// LineTaxCents returns amount × rate / 100 rounded half away from zero.
func LineTaxCents(amountCents int64, ratePercent float64) int64 {
	if amountCents == 0 || ratePercent <= 0 {
		return 0
	}
	tax := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(ratePercent)).
		Div(hundred).
		Round(0)
	return tax.IntPart()
}

// Change returns tendered − total.
func Change(totalCents, tenderedCents int64) (int64, error) {
	if tenderedCents < totalCents {
		return 0, ErrInsufficientTender
	}
	return tenderedCents - totalCents, nil
}

// WeightedCostCents blends the current unit cost with an incoming receipt:
// ((oldQty × oldCost) + (inQty × inCost)) / (oldQty + inQty), rounded to cents.
// Negative on-hand stock is treated as zero.
func WeightedCostCents(oldCostCents int64, oldQty int, inCostCents int64, inQty int) int64 {
	if oldQty < 0 {
		oldQty = 0
	}
	if inQty <= 0 {
		return oldCostCents
	}
	qty := decimal.NewFromInt(int64(oldQty + inQty))
	num := decimal.NewFromInt(int64(oldQty)).Mul(decimal.NewFromInt(oldCostCents)).
		Add(decimal.NewFromInt(int64(inQty)).Mul(decimal.NewFromInt(inCostCents)))
	return num.Div(qty).Round(0).IntPart()
}
