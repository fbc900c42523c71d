package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID          string          `json:"id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	PromoCode   *string         `json:"promo_code,omitempty"`
	Fulfillment Fulfillment     `json:"fulfillment"`
	Status      Status          `json:"status"` // lihat status.go
	UserID      *string         `json:"user_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderItem is a snapshot of a cart line taken at submission time. It does not
// follow later catalog price changes.
type OrderItem struct {
	OrderID   string          `json:"order_id"`
	DishID    int             `json:"dish_id"`
	DishName  string          `json:"dish_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ItemsSubtotal recomputes an order subtotal from its item snapshots.
func ItemsSubtotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
