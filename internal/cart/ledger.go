package cart

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-restaurant-orders/internal/catalog"
	"github.com/shopspring/decimal"
)

type LineItem struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category"`
	ImageRef  string          `json:"image_ref"`
}

// Ledger is the in-memory cart of one session. Lines are unique by dish id and
// keep insertion order. A Ledger has a single mutator and is not safe for
// concurrent use.
type Ledger struct {
	lines []LineItem
}

func NewLedger() *Ledger { return &Ledger{} }

func (l *Ledger) index(id int) int {
	for i := range l.lines {
		if l.lines[i].ID == id {
			return i
		}
	}
	return -1
}

// AddItem bumps the quantity of an existing line by one, or appends a new line
// with quantity 1.
func (l *Ledger) AddItem(d catalog.Dish) {
	if i := l.index(d.ID); i >= 0 {
		l.lines[i].Quantity++
		return
	}
	l.lines = append(l.lines, LineItem{
		ID:        d.ID,
		Name:      d.Name,
		UnitPrice: d.UnitPrice,
		Quantity:  1,
		Category:  d.Category,
		ImageRef:  d.ImageRef,
	})
}

// RemoveItem drops the line whatever its quantity.
func (l *Ledger) RemoveItem(id int) {
	if i := l.index(id); i >= 0 {
		l.lines = append(l.lines[:i], l.lines[i+1:]...)
	}
}

// UpdateQuantity sets quantity to max(1, quantity+delta). It never removes a
// line; use RemoveItem for that. Unknown ids are ignored.
func (l *Ledger) UpdateQuantity(id, delta int) {
	i := l.index(id)
	if i < 0 {
		return
	}
	l.lines[i].Quantity = max(1, l.lines[i].Quantity+delta)
}

func (l *Ledger) Clear() { l.lines = nil }

func (l *Ledger) IsInCart(id int) bool { return l.index(id) >= 0 }

func (l *Ledger) QuantityOf(id int) int {
	if i := l.index(id); i >= 0 {
		return l.lines[i].Quantity
	}
	return 0
}

func (l *Ledger) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range l.lines {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func (l *Ledger) ItemCount() int {
	n := 0
	for _, it := range l.lines {
		n += it.Quantity
	}
	return n
}

func (l *Ledger) Len() int { return len(l.lines) }

// Items returns a copy of the lines in insertion order.
func (l *Ledger) Items() []LineItem {
	out := make([]LineItem, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *Ledger) MarshalJSON() ([]byte, error) {
	if l.lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.lines)
}

// UnmarshalJSON restores a snapshot. Duplicate ids and quantities below 1 are
// rejected since the ledger could never have produced them.
func (l *Ledger) UnmarshalJSON(b []byte) error {
	var lines []LineItem
	if err := json.Unmarshal(b, &lines); err != nil {
		return err
	}
	seen := make(map[int]struct{}, len(lines))
	for _, it := range lines {
		if it.Quantity < 1 {
			return fmt.Errorf("cart snapshot: dish %d has quantity %d", it.ID, it.Quantity)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("cart snapshot: duplicate dish %d", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	l.lines = lines
	return nil
}
