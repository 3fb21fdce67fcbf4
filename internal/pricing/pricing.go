// Package pricing computes server-side order totals.
package pricing

import (
	"github.com/shopspring/decimal"
)

type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Adjustment is a redeemed reward applied at checkout.
type Adjustment struct {
	Discount     decimal.Decimal
	FreeShipping bool
}

type Summary struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Shipping  decimal.Decimal `json:"shipping"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// MinimumChargeMinor is the smallest amount, in cents, the processor accepts.
const MinimumChargeMinor int64 = 50

var hundred = decimal.NewFromInt(100)

func Subtotal(lines []Line) (decimal.Decimal, int) {
	subtotal := decimal.Zero
	count := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		count += l.Quantity
	}
	return subtotal.Round(2), count
}

// Compute prices a set of lines. Shipping is free once the subtotal reaches
// the threshold; tax is charged on the subtotal. The discount never exceeds
// the subtotal, and total = subtotal - discount + shipping + tax.
func (r Rules) Compute(lines []Line, adj Adjustment) Summary {
	subtotal, count := Subtotal(lines)

	shipping := r.FlatShippingFee
	if subtotal.GreaterThanOrEqual(r.FreeShippingThreshold) || adj.FreeShipping || count == 0 {
		shipping = decimal.Zero
	}

	discount := decimal.Min(adj.Discount, subtotal)
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	tax := subtotal.Mul(r.TaxRate).Round(2)
	total := subtotal.Sub(discount).Add(shipping).Add(tax)

	return Summary{
		Subtotal:  subtotal,
		Discount:  discount.Round(2),
		Shipping:  shipping.Round(2),
		Tax:       tax,
		Total:     total.Round(2),
		ItemCount: count,
	}
}

// MinorUnits converts a two-decimal currency amount to cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Chargeable reports whether the total meets the processor minimum.
func (s Summary) Chargeable() bool {
	return MinorUnits(s.Total) >= MinimumChargeMinor
}
