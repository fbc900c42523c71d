package promo

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNormalizesInput(t *testing.T) {
	reg := DefaultRegistry()

	for _, in := range []string{"OGA10", "oga10", "  Oga10\t"} {
		rule, err := reg.Resolve(in)
		require.NoError(t, err, in)
		assert.Equal(t, "OGA10", rule.Code)
		assert.Equal(t, KindPercent, rule.Kind)
		assert.True(t, rule.Value.Equal(decimal.NewFromInt(10)))
	}
}

func TestResolveUnknownCode(t *testing.T) {
	_, err := DefaultRegistry().Resolve("bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPromoCode)

	var typed *InvalidPromoCodeError
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "BOGUS", typed.Code)
	assert.Contains(t, err.Error(), "not valid")
}

func TestSelectionKeepsPreviousOnFailure(t *testing.T) {
	reg := DefaultRegistry()
	var sel Selection

	_, err := sel.Apply(reg, "welcome5")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME5", sel.Code())

	_, err = sel.Apply(reg, "nope")
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
	assert.Equal(t, "WELCOME5", sel.Code())

	_, err = sel.Apply(reg, "FREESHIP")
	require.NoError(t, err)
	require.NotNil(t, sel.Active())
	assert.Equal(t, KindFreeShipping, sel.Active().Kind)

	sel.Clear()
	assert.Nil(t, sel.Active())
	assert.Empty(t, sel.Code())
}

func TestRegistryIsInjectable(t *testing.T) {
	reg := NewRegistry(Rule{Code: "test50", Kind: KindPercent, Value: decimal.NewFromInt(50)})
	rule, err := reg.Resolve("TEST50")
	require.NoError(t, err)
	assert.Equal(t, "TEST50", rule.Code)

	_, err = reg.Resolve("OGA10")
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry(`[{"code":"half","kind":"percent","value":"50","description":"half off"}]`)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, err = ParseRegistry(`[{"code":"x","kind":"bogo","value":"1"}]`)
	assert.Error(t, err)

	_, err = ParseRegistry(`not json`)
	assert.Error(t, err)
}
