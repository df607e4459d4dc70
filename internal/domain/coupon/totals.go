package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals is the price breakdown shown on the cart and checkout pages.
type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	ShippingDiscount decimal.Decimal `json:"shippingDiscount"`
	Shipping         decimal.Decimal `json:"shipping"`
	FinalTotal       decimal.Decimal `json:"finalTotal"`
	DiscountType     string          `json:"discountType"`
}

// CalculateTotals combines a cart subtotal, a shipping cost and an optional
// applied coupon. It is pure: equal inputs always give equal outputs.
//
// A coupon whose minimum purchase is not reached stays selected but grants
// nothing; DiscountType then explains why.
func CalculateTotals(subtotal, shipping decimal.Decimal, c *Coupon) Totals {
	t := Totals{
		Subtotal:         subtotal,
		Discount:         decimal.Zero,
		ShippingDiscount: decimal.Zero,
		Shipping:         shipping,
		FinalTotal:       subtotal.Add(shipping),
	}
	if c == nil {
		return t
	}

	if subtotal.LessThan(c.MinPurchaseValue) {
		t.DiscountType = fmt.Sprintf("minimum purchase of %s not reached", formatBRL(c.MinPurchaseValue))
		return t
	}

	switch c.Type {
	case TypePercent:
		t.Discount = subtotal.Mul(c.Value).Div(hundred).Round(2)
		t.DiscountType = fmt.Sprintf("%s%% off", c.Value.String())
	case TypeFixed:
		t.Discount = decimal.Min(c.Value, subtotal).Round(2)
		t.DiscountType = fmt.Sprintf("%s off", formatBRL(c.Value))
	case TypeFreeShipping:
		t.ShippingDiscount = shipping
		t.DiscountType = "free shipping"
	}

	total := subtotal.Sub(t.Discount).Add(shipping).Sub(t.ShippingDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	t.FinalTotal = total
	return t
}

func formatBRL(v decimal.Decimal) string {
	return "R$ " + v.StringFixed(2)
}
