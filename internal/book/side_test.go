package book

import (
	"testing"

	"obsim/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResting(t *testing.T, id string, side common.Side, qty uint64, price float64) *common.Order {
	t.Helper()
	o, err := common.NewOrder(id, "trader-"+id, "AAPL", side, qty, price)
	require.NoError(t, err)
	return o
}

func TestSide_BestPrice_BidsDescendingAsksAscending(t *testing.T) {
	bids := NewSide(common.Buy)
	require.NoError(t, bids.Add(newResting(t, "b1", common.Buy, 10, 99)))
	require.NoError(t, bids.Add(newResting(t, "b2", common.Buy, 10, 101)))
	require.NoError(t, bids.Add(newResting(t, "b3", common.Buy, 10, 100)))

	price, ok := bids.BestPrice()
	require.True(t, ok)
	assert.Equal(t, 101.0, price)

	asks := NewSide(common.Sell)
	require.NoError(t, asks.Add(newResting(t, "a1", common.Sell, 10, 105)))
	require.NoError(t, asks.Add(newResting(t, "a2", common.Sell, 10, 102)))
	require.NoError(t, asks.Add(newResting(t, "a3", common.Sell, 10, 104)))

	price, ok = asks.BestPrice()
	require.True(t, ok)
	assert.Equal(t, 102.0, price)
}

func TestSide_FIFOWithinLevel(t *testing.T) {
	s := NewSide(common.Sell)
	first := newResting(t, "x", common.Sell, 5, 100)
	second := newResting(t, "y", common.Sell, 5, 100)
	require.NoError(t, s.Add(first))
	require.NoError(t, s.Add(second))

	front, ok := s.BestOrder()
	require.True(t, ok)
	assert.Equal(t, "x", front.ID)

	require.True(t, s.Remove("x"))
	front, ok = s.BestOrder()
	require.True(t, ok)
	assert.Equal(t, "y", front.ID)
}

func TestSide_RemoveEmptiesLevel(t *testing.T) {
	s := NewSide(common.Buy)
	require.NoError(t, s.Add(newResting(t, "b1", common.Buy, 10, 100)))
	require.True(t, s.Remove("b1"))
	assert.Equal(t, 0, s.Levels())
	_, ok := s.BestPrice()
	assert.False(t, ok)
}

func TestSide_RemoveUnknownIsNoop(t *testing.T) {
	s := NewSide(common.Buy)
	assert.False(t, s.Remove("nope"))
}

func TestSide_TopLevelsAndTotalVolume(t *testing.T) {
	s := NewSide(common.Buy)
	require.NoError(t, s.Add(newResting(t, "b1", common.Buy, 10, 100)))
	require.NoError(t, s.Add(newResting(t, "b2", common.Buy, 5, 100)))
	require.NoError(t, s.Add(newResting(t, "b3", common.Buy, 7, 99)))

	views := s.TopLevels(10)
	require.Len(t, views, 2)
	assert.Equal(t, 100.0, views[0].Price)
	assert.Equal(t, uint64(15), views[0].Quantity)
	assert.Equal(t, 2, views[0].OrderCount)
	assert.Equal(t, 99.0, views[1].Price)

	assert.Equal(t, uint64(22), s.TotalVolume())
	assert.Equal(t, 3, s.Len())
}
