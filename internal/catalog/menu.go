package catalog

import (
	"github.com/shopspring/decimal"
)

type Dish struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Category  string          `json:"category"`
	ImageRef  string          `json:"image_ref"`
}

// Menu is a read-only, versioned dish list.
type Menu struct {
	Version string
	dishes  []Dish
	byID    map[int]int
}

func NewMenu(version string, dishes ...Dish) *Menu {
	m := &Menu{Version: version, dishes: make([]Dish, 0, len(dishes)), byID: make(map[int]int, len(dishes))}
	for _, d := range dishes {
		if _, dup := m.byID[d.ID]; dup {
			continue
		}
		m.byID[d.ID] = len(m.dishes)
		m.dishes = append(m.dishes, d)
	}
	return m
}

func (m *Menu) All() []Dish {
	out := make([]Dish, len(m.dishes))
	copy(out, m.dishes)
	return out
}

func (m *Menu) Lookup(id int) (Dish, bool) {
	i, ok := m.byID[id]
	if !ok {
		return Dish{}, false
	}
	return m.dishes[i], true
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Default is the house menu.
func Default() *Menu {
	return NewMenu("2024-06",
		Dish{ID: 1, Name: "Jollof Rice", UnitPrice: price("12.50"), Category: "mains", ImageRef: "dishes/jollof.jpg"},
		Dish{ID: 2, Name: "Egusi Soup & Pounded Yam", UnitPrice: price("16.99"), Category: "mains", ImageRef: "dishes/egusi.jpg"},
		Dish{ID: 3, Name: "Pepper Soup", UnitPrice: price("9.75"), Category: "starters", ImageRef: "dishes/pepper-soup.jpg"},
		Dish{ID: 4, Name: "Suya Platter", UnitPrice: price("15.00"), Category: "grill", ImageRef: "dishes/suya.jpg"},
		Dish{ID: 5, Name: "Fried Plantain", UnitPrice: price("5.50"), Category: "sides", ImageRef: "dishes/dodo.jpg"},
		Dish{ID: 6, Name: "Puff-Puff", UnitPrice: price("4.25"), Category: "desserts", ImageRef: "dishes/puff-puff.jpg"},
		Dish{ID: 7, Name: "Chapman", UnitPrice: price("3.99"), Category: "drinks", ImageRef: "dishes/chapman.jpg"},
		Dish{ID: 8, Name: "Zobo", UnitPrice: price("3.50"), Category: "drinks", ImageRef: "dishes/zobo.jpg"},
	)
}
