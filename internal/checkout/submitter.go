package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-restaurant-orders/internal/cart"
	"github.com/ariefcatur/go-restaurant-orders/internal/logger"
	"github.com/ariefcatur/go-restaurant-orders/internal/metrics"
	"github.com/ariefcatur/go-restaurant-orders/internal/orders"
	"github.com/ariefcatur/go-restaurant-orders/internal/pricing"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidFulfillment = errors.New("fulfillment must be pickup or delivery")
	ErrPersistence        = errors.New("order could not be saved")
)

// PersistenceError wraps the store failure. errors.Is(err, ErrPersistence) holds.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", ErrPersistence, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// OrderStore must write the order and its items atomically.
type OrderStore interface {
	CreateOrder(ctx context.Context, o orders.Order, items []orders.OrderItem) (string, error)
}

type Request struct {
	Ledger      *cart.Ledger
	Breakdown   pricing.Breakdown
	PromoCode   string
	Fulfillment orders.Fulfillment
	UserID      string // empty for guest checkout
}

type Confirmation struct {
	OrderID string
	Order   orders.Order
	Items   []orders.OrderItem
}

// Submitter places orders. It does not deduplicate: two calls with the same
// cart produce two orders, so callers guard against concurrent submits.
type Submitter struct {
	Store   OrderStore
	Metrics *metrics.Orders
	Log     *logger.Logger
	Now     func() time.Time
}

func (s *Submitter) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Submit never touches the ledger. Clearing the cart on success is up to the caller.
func (s *Submitter) Submit(ctx context.Context, req Request) (Confirmation, error) {
	if req.Ledger == nil || req.Ledger.Len() == 0 {
		s.Metrics.Checkout("empty_cart")
		return Confirmation{}, ErrEmptyCart
	}
	if !req.Fulfillment.Valid() {
		s.Metrics.Checkout("invalid")
		return Confirmation{}, fmt.Errorf("%w: %q", ErrInvalidFulfillment, req.Fulfillment)
	}

	o, items := BuildOrder(req, s.now())
	id, err := s.Store.CreateOrder(ctx, o, items)
	if err != nil {
		s.Metrics.Checkout("persistence_error")
		if s.Log != nil {
			s.Log.Error(ctx, "checkout: store rejected order", err)
		}
		return Confirmation{}, &PersistenceError{Err: err}
	}

	o.ID = id
	for i := range items {
		items[i].OrderID = id
	}
	s.Metrics.Checkout("success")
	if s.Log != nil {
		s.Log.Info(s.Log.WithFields(ctx, map[string]any{"order_id": id, "total": o.Total.StringFixed(2)}), "order placed")
	}
	return Confirmation{OrderID: id, Order: o, Items: items}, nil
}

// BuildOrder snapshots the ledger into an order and its items. Totals are
// rounded to cents here since this is the persistence boundary.
func BuildOrder(req Request, at time.Time) (orders.Order, []orders.OrderItem) {
	b := req.Breakdown.Rounded()
	o := orders.Order{
		Subtotal:    b.Subtotal,
		Discount:    b.Discount,
		DeliveryFee: b.DeliveryFee,
		Tax:         b.Tax,
		Total:       b.Total,
		Fulfillment: req.Fulfillment,
		Status:      orders.StatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if req.PromoCode != "" {
		code := req.PromoCode
		o.PromoCode = &code
	}
	if req.UserID != "" {
		uid := req.UserID
		o.UserID = &uid
	}

	lines := req.Ledger.Items()
	items := make([]orders.OrderItem, 0, len(lines))
	for _, it := range lines {
		items = append(items, orders.OrderItem{
			DishID:    it.ID,
			DishName:  it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return o, items
}
