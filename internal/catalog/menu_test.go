package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuLookup(t *testing.T) {
	m := Default()

	d, ok := m.Lookup(4)
	require.True(t, ok)
	assert.Equal(t, "Suya Platter", d.Name)
	assert.True(t, d.UnitPrice.Equal(decimal.RequireFromString("15")))

	_, ok = m.Lookup(999)
	assert.False(t, ok)
}

func TestMenuAllIsACopy(t *testing.T) {
	m := NewMenu("test", Dish{ID: 1, Name: "A"}, Dish{ID: 1, Name: "dup"}, Dish{ID: 2, Name: "B"})

	all := m.All()
	require.Len(t, all, 2)
	all[0].Name = "changed"

	d, _ := m.Lookup(1)
	assert.Equal(t, "A", d.Name)
}
