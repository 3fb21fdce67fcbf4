package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rules() Rules {
	return Rules{
		FreeShippingThreshold: d("100"),
		FlatShippingFee:       d("10"),
		TaxRate:               d("0.08"),
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestComputeBelowThreshold(t *testing.T) {
	s := rules().Compute([]Line{{UnitPrice: d("49.99"), Quantity: 2}}, Adjustment{})

	assertDec(t, "99.98", s.Subtotal)
	assertDec(t, "10", s.Shipping)
	assertDec(t, "8", s.Tax)
	assertDec(t, "117.98", s.Total)
	assert.Equal(t, 2, s.ItemCount)
	assert.True(t, s.Total.Equal(s.Subtotal.Sub(s.Discount).Add(s.Shipping).Add(s.Tax)))
}

func TestComputeFreeShippingAtThreshold(t *testing.T) {
	s := rules().Compute([]Line{{UnitPrice: d("50"), Quantity: 2}}, Adjustment{})

	assertDec(t, "100", s.Subtotal)
	assertDec(t, "0", s.Shipping)
	assertDec(t, "108", s.Total)
}

func TestComputeWithDiscount(t *testing.T) {
	s := rules().Compute([]Line{{UnitPrice: d("20"), Quantity: 1}}, Adjustment{Discount: d("5")})

	assertDec(t, "5", s.Discount)
	assertDec(t, "1.6", s.Tax)
	assertDec(t, "26.6", s.Total)
}

func TestComputeDiscountCappedAtSubtotal(t *testing.T) {
	s := rules().Compute([]Line{{UnitPrice: d("12"), Quantity: 1}}, Adjustment{Discount: d("50"), FreeShipping: true})

	assertDec(t, "12", s.Discount)
	assertDec(t, "0", s.Shipping)
	assertDec(t, "0.96", s.Total)
}

func TestComputeMultipleLines(t *testing.T) {
	s := rules().Compute([]Line{
		{UnitPrice: d("19.99"), Quantity: 3},
		{UnitPrice: d("5.25"), Quantity: 1},
	}, Adjustment{})

	assertDec(t, "65.22", s.Subtotal)
	assert.Equal(t, 4, s.ItemCount)
	assertDec(t, "5.22", s.Tax)
	assertDec(t, "80.44", s.Total)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(11798), MinorUnits(d("117.98")))
	assert.Equal(t, int64(100), MinorUnits(d("1")))
	assert.Equal(t, int64(1), MinorUnits(d("0.005")))
}

func TestChargeable(t *testing.T) {
	untaxed := Rules{FreeShippingThreshold: d("0"), FlatShippingFee: d("10"), TaxRate: d("0")}

	s := untaxed.Compute([]Line{{UnitPrice: d("5"), Quantity: 1}}, Adjustment{Discount: d("5")})
	assertDec(t, "0", s.Total)
	assert.False(t, s.Chargeable())

	s = untaxed.Compute([]Line{{UnitPrice: d("5.49"), Quantity: 1}}, Adjustment{Discount: d("5")})
	assertDec(t, "0.49", s.Total)
	assert.False(t, s.Chargeable())

	s = untaxed.Compute([]Line{{UnitPrice: d("5.50"), Quantity: 1}}, Adjustment{Discount: d("5")})
	assert.True(t, s.Chargeable())

	assert.True(t, rules().Compute([]Line{{UnitPrice: d("49.99"), Quantity: 2}}, Adjustment{}).Chargeable())
}
