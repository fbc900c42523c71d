package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	DishID    int             `json:"dish_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderPlacedPayload struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id,omitempty"`
	Fulfillment Fulfillment     `json:"fulfillment"`
	Items       []ItemLine      `json:"items"`
	Total       decimal.Decimal `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID     string      `json:"order_id"`
	Fulfillment Fulfillment `json:"fulfillment"`
	From        Status      `json:"from"`
	To          Status      `json:"to"`
	ChangedAt   time.Time   `json:"changed_at"`
}

func NewOrderPlacedPayload(o Order, items []OrderItem) OrderPlacedPayload {
	lines := make([]ItemLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, ItemLine{DishID: it.DishID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	p := OrderPlacedPayload{OrderID: o.ID, Fulfillment: o.Fulfillment, Items: lines, Total: o.Total}
	if o.UserID != nil {
		p.UserID = *o.UserID
	}
	return p
}
