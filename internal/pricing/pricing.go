// Package pricing derives a cart's monetary totals. Totals are never cached
// on the cart; callers recompute from the current snapshot each time.
package pricing

import (
	"github.com/laundrypos/api/internal/cart"
	"github.com/laundrypos/api/internal/enum"
	"github.com/laundrypos/api/internal/money"
	"github.com/shopspring/decimal"
)

var (
	// ExpressSurchargeRate is applied to the base subtotal of express orders.
	ExpressSurchargeRate = decimal.RequireFromString("0.5")
	// GSTRate is applied to the post-discount, post-delivery amount.
	GSTRate = decimal.RequireFromString("0.18")
)

// Totals is the breakdown of one cart. Only Total is rounded.
type Totals struct {
	BaseSubtotal     decimal.Decimal `json:"base_subtotal"`
	ExpressSurcharge decimal.Decimal `json:"express_surcharge"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	AfterDiscount    decimal.Decimal `json:"after_discount"`
	DeliveryAmount   decimal.Decimal `json:"delivery_amount"`
	BeforeGST        decimal.Decimal `json:"before_gst"`
	GSTAmount        decimal.Decimal `json:"gst_amount"`
	Total            decimal.Decimal `json:"total"`
	ItemCount        int             `json:"item_count"`
}

// Calculate runs the fixed pipeline: base subtotal, express surcharge,
// discount, extra charges, delivery, GST, floor at zero and round.
//
// Nothing is clamped before the final total: an oversized fixed discount
// makes AfterDiscount and BeforeGST negative, GST is still computed on the
// negative amount, and only Total is floored.
func Calculate(c cart.Cart) Totals {
	var t Totals

	base := decimal.Zero
	for _, it := range c.Items {
		addOns := decimal.Zero
		for _, a := range it.AddOns {
			addOns = addOns.Add(a.Price)
		}
		base = base.Add(it.Subtotal).Add(addOns.Mul(decimal.NewFromInt(int64(it.Quantity))))
		t.ItemCount += it.Quantity
	}
	t.BaseSubtotal = base

	t.ExpressSurcharge = decimal.Zero
	if c.IsExpressOrder {
		t.ExpressSurcharge = base.Mul(ExpressSurchargeRate)
	}
	t.Subtotal = base.Add(t.ExpressSurcharge)

	// Discount applies to the surcharged subtotal.
	switch c.DiscountType {
	case enum.DiscountTypePercentage:
		t.DiscountAmount = money.Percent(t.Subtotal, c.DiscountValue)
	case enum.DiscountTypeFixed:
		t.DiscountAmount = c.DiscountValue
	default:
		t.DiscountAmount = decimal.Zero
	}
	t.AfterDiscount = t.Subtotal.Sub(t.DiscountAmount).Add(c.ExtraCharges)

	t.DeliveryAmount = decimal.Zero
	if c.FulfillmentType == enum.FulfillmentDelivery {
		t.DeliveryAmount = c.DeliveryCharges
	}
	t.BeforeGST = t.AfterDiscount.Add(t.DeliveryAmount)

	t.GSTAmount = decimal.Zero
	if c.EnableGST {
		t.GSTAmount = t.BeforeGST.Mul(GSTRate)
	}

	t.Total = money.Round2(money.FloorZero(t.BeforeGST.Add(t.GSTAmount)))
	return t
}

// Summary aggregates the open carts of a terminal.
type Summary struct {
	Carts      int               `json:"carts"`
	ItemCount  int               `json:"item_count"`
	GrandTotal decimal.Decimal   `json:"grand_total"`
	ByCart     map[string]Totals `json:"by_cart"`
}

// Summarize totals every cart in st.
func Summarize(st cart.State) Summary {
	sum := Summary{
		Carts:      len(st.Carts),
		GrandTotal: decimal.Zero,
		ByCart:     make(map[string]Totals, len(st.Carts)),
	}
	for _, c := range st.Carts {
		t := Calculate(c)
		sum.ItemCount += t.ItemCount
		sum.GrandTotal = sum.GrandTotal.Add(t.Total)
		sum.ByCart[c.ID] = t
	}
	return sum
}
