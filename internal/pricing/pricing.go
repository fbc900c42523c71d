package pricing

import (
	"github.com/ariefcatur/go-restaurant-orders/internal/promo"
	"github.com/shopspring/decimal"
)

type Params struct {
	DeliveryThreshold decimal.Decimal
	DeliveryFee       decimal.Decimal
	TaxRate           decimal.Decimal
}

func DefaultParams() Params {
	return Params{
		DeliveryThreshold: decimal.RequireFromString("30.00"),
		DeliveryFee:       decimal.RequireFromString("3.99"),
		TaxRate:           decimal.RequireFromString("0.0875"),
	}
}

// Breakdown values are unrounded. Call Rounded only when rendering or persisting.
type Breakdown struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// Price applies, in order: discount, delivery fee, tax base, tax, total.
//
// Percent promos are taxed on the discounted subtotal; flat promos and no promo
// are taxed on the undiscounted subtotal. The discount is capped at the subtotal.
func Price(subtotal decimal.Decimal, applied *promo.Rule, p Params) Breakdown {
	discount := decimal.Zero
	if applied != nil {
		switch applied.Kind {
		case promo.KindPercent:
			discount = subtotal.Mul(applied.Value).Div(hundred)
		case promo.KindFlat:
			discount = applied.Value
		}
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	fee := p.DeliveryFee
	if subtotal.GreaterThanOrEqual(p.DeliveryThreshold) {
		fee = decimal.Zero
	}
	if applied != nil && applied.Kind == promo.KindFreeShipping {
		fee = decimal.Zero
	}

	taxBase := subtotal
	if applied != nil && applied.Kind == promo.KindPercent {
		taxBase = subtotal.Sub(discount)
	}
	tax := taxBase.Mul(p.TaxRate)

	return Breakdown{
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: fee,
		Tax:         tax,
		Total:       subtotal.Sub(discount).Add(fee).Add(tax),
	}
}

// Rounded rounds every component to cents, half away from zero. The total is
// rounded from the exact total, not summed from rounded parts.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		Subtotal:    b.Subtotal.Round(2),
		Discount:    b.Discount.Round(2),
		DeliveryFee: b.DeliveryFee.Round(2),
		Tax:         b.Tax.Round(2),
		Total:       b.Total.Round(2),
	}
}
