package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder("", "t1", "AAPL", Buy, 10, 100)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOrder("o1", "t1", "", Buy, 10, 100)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOrder("o1", "t1", "AAPL", Buy, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOrder("o1", "t1", "AAPL", Buy, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	o, err := NewOrder("o1", "t1", "AAPL", Buy, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, Pending, o.Status)
	assert.True(t, o.IsActive())
}

func TestOrder_ApplyFill_PartialThenFull(t *testing.T) {
	o, err := NewOrder("o1", "t1", "AAPL", Buy, 10, 100)
	require.NoError(t, err)

	require.NoError(t, o.ApplyFill(4, 99.5))
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.Equal(t, uint64(6), o.Remaining)
	assert.True(t, o.IsActive())

	require.NoError(t, o.ApplyFill(6, 100))
	assert.Equal(t, Filled, o.Status)
	assert.Equal(t, uint64(0), o.Remaining)
	assert.False(t, o.IsActive())

	want := (99.5*4 + 100*6) / 10
	assert.InDelta(t, want, o.AverageFillPrice(), 1e-9)
}

func TestOrder_ApplyFill_OverFill(t *testing.T) {
	o, err := NewOrder("o1", "t1", "AAPL", Buy, 10, 100)
	require.NoError(t, err)

	err = o.ApplyFill(11, 100)
	assert.True(t, errors.Is(err, ErrOverFill))
	assert.Equal(t, uint64(10), o.Remaining)
}

func TestOrder_Cancel_Idempotent(t *testing.T) {
	o, err := NewOrder("o1", "t1", "AAPL", Sell, 10, 100)
	require.NoError(t, err)

	o.Cancel()
	assert.Equal(t, Cancelled, o.Status)
	assert.False(t, o.IsActive())

	require.NoError(t, o.ApplyFill(0, 100))
	o.Cancel()
	assert.Equal(t, Cancelled, o.Status)
}

func TestRing_WrapsAndReportsRecent(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Append(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.All())
	assert.Equal(t, []int{4, 5}, r.Recent(2))
	assert.Equal(t, 3, r.Len())
}
