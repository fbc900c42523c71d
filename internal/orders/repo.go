package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("order not found")

// DB is the slice of *pgxpool.Pool used by Repo.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repo struct{ DB DB }

// StatusChange describes one applied status transition.
type StatusChange struct {
	OrderID     string      `json:"order_id"`
	Fulfillment Fulfillment `json:"fulfillment"`
	From        Status      `json:"from"`
	To          Status      `json:"to"`
	ChangedAt   time.Time   `json:"changed_at"`
}

// CreateOrder inserts the order row and all its items in one transaction. Either
// both land or neither does.
func (r *Repo) CreateOrder(ctx context.Context, o Order, items []OrderItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("order has no items")
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID := uuid.NewString()
	if o.Status == "" {
		o.Status = StatusPending
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO orders(id, subtotal, discount, delivery_fee, tax, total, promo_code, fulfillment, status, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, orderID, o.Subtotal, o.Discount, o.DeliveryFee, o.Tax, o.Total, o.PromoCode,
		string(o.Fulfillment), string(o.Status), o.UserID, o.CreatedAt); err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, dish_id, dish_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.DishID, it.DishName, it.Quantity, it.UnitPrice,
		); err != nil {
			return "", fmt.Errorf("insert order item %d: %w", it.DishID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return orderID, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var (
		o           Order
		fulfillment string
		status      string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, subtotal, discount, delivery_fee, tax, total, promo_code, fulfillment, status, user_id, created_at, updated_at
		FROM orders WHERE id=$1`, orderID,
	).Scan(&o.ID, &o.Subtotal, &o.Discount, &o.DeliveryFee, &o.Tax, &o.Total, &o.PromoCode,
		&fulfillment, &status, &o.UserID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Fulfillment = Fulfillment(fulfillment)
	o.Status = Status(status)
	return o, nil
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID string) (Status, Fulfillment, error) {
	var s, f string
	err := r.DB.QueryRow(ctx, `SELECT status, fulfillment FROM orders WHERE id=$1`, orderID).Scan(&s, &f)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return Status(s), Fulfillment(f), nil
}

func (r *Repo) ListItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT order_id, dish_id, dish_name, quantity, unit_price
	                              FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.OrderID, &it.DishID, &it.DishName, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateStatus locks the order row and applies the transition when CanTransition
// allows it. Kitchen and delivery operations are the only callers.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) (StatusChange, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return StatusChange{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from, f string
	err = tx.QueryRow(ctx, `SELECT status, fulfillment FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&from, &f)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusChange{}, ErrNotFound
	}
	if err != nil {
		return StatusChange{}, err
	}

	ch := StatusChange{OrderID: orderID, Fulfillment: Fulfillment(f), From: Status(from), To: to, ChangedAt: time.Now().UTC()}
	if !CanTransition(ch.From, to, ch.Fulfillment) {
		return StatusChange{}, fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, ch.From, to, ch.Fulfillment)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, orderID, string(to), ch.ChangedAt); err != nil {
		return StatusChange{}, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return StatusChange{}, fmt.Errorf("commit: %w", err)
	}
	return ch, nil
}
