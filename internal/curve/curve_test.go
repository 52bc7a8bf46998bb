package curve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"curveSwap/internal/model"
)

func amt(n uint64) model.Amount { return model.NewAmount(n) }

func TestLinearMonotonic(t *testing.T) {
	c := NewLinear(amt(2400), amt(100))

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Advance(CounterpartySubmitsTokens))
		require.Equal(t, amt(2400+uint64(i)*100), c.SpotPrice)
	}

	c = NewLinear(amt(2400), amt(100))
	for i := 1; i <= 23; i++ {
		require.NoError(t, c.Advance(CounterpartySubmitsItem))
		require.Equal(t, amt(2400-uint64(i)*100), c.SpotPrice)
	}
	require.Equal(t, amt(100), c.SpotPrice)

	// 100 - 100 is zero, which is not a usable price.
	_, err := c.NextSpotPrice(CounterpartySubmitsItem)
	require.ErrorIs(t, err, ErrPriceInvalid)

	c.SpotPrice = amt(50)
	_, err = c.NextSpotPrice(CounterpartySubmitsItem)
	require.ErrorIs(t, err, ErrPriceInvalid)
}

func TestExponentialSteps(t *testing.T) {
	c := NewExponential(amt(2400), amt(500))

	up, err := c.NextSpotPrice(CounterpartySubmitsTokens)
	require.NoError(t, err)
	require.Equal(t, amt(2520), up)

	down, err := c.NextSpotPrice(CounterpartySubmitsItem)
	require.NoError(t, err)
	require.Equal(t, amt(2285), down)

	prev := c.SpotPrice
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Advance(CounterpartySubmitsItem))
		require.Equal(t, -1, c.SpotPrice.Cmp(prev))
		prev = c.SpotPrice
	}

	tiny := NewExponential(amt(1), amt(500))
	_, err = tiny.NextSpotPrice(CounterpartySubmitsItem)
	require.ErrorIs(t, err, ErrPriceInvalid)

	up, err = tiny.NextSpotPrice(CounterpartySubmitsTokens)
	require.NoError(t, err)
	require.Equal(t, amt(2), up)
}

func TestZeroDeltaIsInvalid(t *testing.T) {
	for _, c := range []BondingCurve{
		{Kind: Linear, SpotPrice: amt(10)},
		{Kind: Exponential, SpotPrice: amt(10)},
	} {
		_, err := c.NextSpotPrice(CounterpartySubmitsTokens)
		require.ErrorIs(t, err, ErrPriceInvalid)
		require.ErrorIs(t, c.Validate(), model.ErrInvalidPool)
	}
}

func TestOverflowIsInvalid(t *testing.T) {
	top, err := model.ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)

	c := NewLinear(top, amt(1))
	_, err = c.NextSpotPrice(CounterpartySubmitsTokens)
	require.ErrorIs(t, err, ErrPriceInvalid)

	c = NewExponential(top, amt(1))
	_, err = c.NextSpotPrice(CounterpartySubmitsTokens)
	require.ErrorIs(t, err, ErrPriceInvalid)
}

func TestConstantProductPrices(t *testing.T) {
	c := NewConstantProduct()
	require.NoError(t, c.Validate())

	sell, ok, err := c.SellToPoolPrice(Reserves{Tokens: amt(1000), Items: 4})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, amt(200), sell)

	buy, ok, err := c.BuyFromPoolPrice(Reserves{Tokens: amt(1000), Items: 4}, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, amt(334), buy)

	_, ok, err = c.SellToPoolPrice(Reserves{Tokens: amt(1000)})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.BuyFromPoolPrice(Reserves{Tokens: amt(1000), Items: 1}, true)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.BuyFromPoolPrice(Reserves{Items: 3}, true)
	require.NoError(t, err)
	require.False(t, ok)

	// No stored price to move.
	next, err := c.NextSpotPrice(CounterpartySubmitsItem)
	require.NoError(t, err)
	require.True(t, next.IsZero())
}

func TestBuyFromPoolSpread(t *testing.T) {
	c := NewLinear(amt(2400), amt(100))

	oneSided, ok, err := c.BuyFromPoolPrice(Reserves{}, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, amt(2400), oneSided)

	twoSided, ok, err := c.BuyFromPoolPrice(Reserves{}, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, amt(2500), twoSided)
}
