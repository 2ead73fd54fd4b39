package engine

import (
	"sync"
	"testing"
	"time"

	"obsim/internal/common"
	"obsim/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fillRecord struct {
	orderID string
	qty     uint64
	price   float64
}

type recordingTrader struct {
	id string

	mu    sync.Mutex
	fills []fillRecord
}

func newRecordingTrader(id string) *recordingTrader {
	return &recordingTrader{id: id}
}

func (r *recordingTrader) TraderID() string { return r.id }

func (r *recordingTrader) OnFill(o *common.Order, qty uint64, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, fillRecord{orderID: o.ID, qty: qty, price: price})
}

func (r *recordingTrader) Fills() []fillRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fillRecord, len(r.fills))
	copy(out, r.fills)
	return out
}

func mustOrder(t *testing.T, id, traderID, symbol string, side common.Side, qty uint64, price float64) *common.Order {
	t.Helper()
	o, err := common.NewOrder(id, traderID, symbol, side, qty, price)
	require.NoError(t, err)
	o.SubmittedAt = time.Now()
	return o
}

// Scenarios below drive the matching algorithm directly via processOrder on
// an unstarted engine, so assertions run deterministically without racing
// the worker goroutine.

func TestScenario_ExactCross(t *testing.T) {
	e := New()
	a, b := newRecordingTrader("A"), newRecordingTrader("B")
	e.RegisterTrader(a)
	e.RegisterTrader(b)

	buy := mustOrder(t, "o1", "A", "AAPL", common.Buy, 10, 100)
	e.processOrder(buy)
	sell := mustOrder(t, "o2", "B", "AAPL", common.Sell, 10, 100)
	e.processOrder(sell)

	trades := e.AllTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(10), trades[0].Quantity)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, "A", trades[0].BuyerID)
	assert.Equal(t, "B", trades[0].SellerID)

	assert.Equal(t, common.Filled, buy.Status)
	assert.Equal(t, common.Filled, sell.Status)

	book := e.Orderbook("AAPL")
	assert.Equal(t, 0, book.Bids.Len())
	assert.Equal(t, 0, book.Asks.Len())

	require.Len(t, a.Fills(), 1)
	require.Len(t, b.Fills(), 1)
}

func TestScenario_PriceImprovement_TradesAtMakerPrice(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("maker"))
	e.RegisterTrader(newRecordingTrader("taker"))

	resting := mustOrder(t, "s1", "maker", "AAPL", common.Sell, 5, 101)
	e.processOrder(resting)

	aggressor := mustOrder(t, "b1", "taker", "AAPL", common.Buy, 5, 105)
	e.processOrder(aggressor)

	trades := e.AllTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, 101.0, trades[0].Price)
}

func TestScenario_PartialFillRestsRemainder(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("maker"))
	e.RegisterTrader(newRecordingTrader("taker"))

	resting := mustOrder(t, "s1", "maker", "AAPL", common.Sell, 5, 100)
	e.processOrder(resting)

	aggressor := mustOrder(t, "b1", "taker", "AAPL", common.Buy, 8, 100)
	e.processOrder(aggressor)

	trades := e.AllTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(5), trades[0].Quantity)

	assert.Equal(t, common.Filled, resting.Status)
	assert.Equal(t, common.PartiallyFilled, aggressor.Status)
	assert.Equal(t, uint64(3), aggressor.Remaining)

	book := e.Orderbook("AAPL")
	bestBid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.0, bestBid)
	assert.Equal(t, uint64(3), book.Bids.TotalVolume())
}

func TestScenario_FIFOWithinLevel(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("x"))
	e.RegisterTrader(newRecordingTrader("y"))
	e.RegisterTrader(newRecordingTrader("taker"))

	x := mustOrder(t, "s1", "x", "AAPL", common.Sell, 3, 100)
	e.processOrder(x)
	y := mustOrder(t, "s2", "y", "AAPL", common.Sell, 3, 100)
	e.processOrder(y)

	aggressor := mustOrder(t, "b1", "taker", "AAPL", common.Buy, 4, 100)
	e.processOrder(aggressor)

	trades := e.AllTrades()
	require.Len(t, trades, 2)
	assert.Equal(t, "s1", trades[0].SellOrderID)
	assert.Equal(t, uint64(3), trades[0].Quantity)
	assert.Equal(t, "s2", trades[1].SellOrderID)
	assert.Equal(t, uint64(1), trades[1].Quantity)

	assert.Equal(t, common.Filled, x.Status)
	assert.Equal(t, common.PartiallyFilled, y.Status)
	assert.Equal(t, uint64(2), y.Remaining)
	assert.Equal(t, common.Filled, aggressor.Status)
}

func TestScenario_SweepsMultipleLevels(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("l1"))
	e.RegisterTrader(newRecordingTrader("l2"))
	e.RegisterTrader(newRecordingTrader("l3"))
	e.RegisterTrader(newRecordingTrader("taker"))

	e.processOrder(mustOrder(t, "s1", "l1", "AAPL", common.Sell, 2, 100))
	e.processOrder(mustOrder(t, "s2", "l2", "AAPL", common.Sell, 2, 101))
	l3 := mustOrder(t, "s3", "l3", "AAPL", common.Sell, 3, 102)
	e.processOrder(l3)

	aggressor := mustOrder(t, "b1", "taker", "AAPL", common.Buy, 6, 102)
	e.processOrder(aggressor)

	trades := e.AllTrades()
	require.Len(t, trades, 3)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, 101.0, trades[1].Price)
	assert.Equal(t, 102.0, trades[2].Price)
	assert.Equal(t, uint64(2), trades[2].Quantity)

	assert.Equal(t, common.Filled, aggressor.Status)
	assert.Equal(t, common.PartiallyFilled, l3.Status)
	assert.Equal(t, uint64(1), l3.Remaining)
}

func TestScenario_CancelRemovesFromPriority(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("first"))
	e.RegisterTrader(newRecordingTrader("second"))
	e.RegisterTrader(newRecordingTrader("taker"))

	first := mustOrder(t, "b1", "first", "AAPL", common.Buy, 5, 100)
	e.processOrder(first)

	second := mustOrder(t, "b2", "second", "AAPL", common.Buy, 5, 99)
	e.processOrder(second)

	ok, err := e.Cancel("b1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, common.Cancelled, first.Status)

	aggressor := mustOrder(t, "s1", "taker", "AAPL", common.Sell, 5, 99)
	e.processOrder(aggressor)

	trades := e.AllTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, "b2", trades[0].BuyOrderID)
	assert.Equal(t, common.Filled, second.Status)
}

func TestEngine_ReprocessingFilledOrderIsNoop(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("maker"))
	e.RegisterTrader(newRecordingTrader("taker"))

	resting := mustOrder(t, "s1", "maker", "AAPL", common.Sell, 5, 100)
	e.processOrder(resting)

	aggressor := mustOrder(t, "b1", "taker", "AAPL", common.Buy, 5, 100)
	e.processOrder(aggressor)

	// Re-processing a filled order must not double count or panic; it is
	// simply no longer active so nothing happens.
	e.processOrder(aggressor)
	assert.Equal(t, 1, len(e.AllTrades()))
}

func TestEngine_MarketSummary_BidAndAskAreDistinct(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("A"))
	e.RegisterTrader(newRecordingTrader("B"))

	e.processOrder(mustOrder(t, "b1", "A", "AAPL", common.Buy, 10, 99))
	e.processOrder(mustOrder(t, "a1", "B", "AAPL", common.Sell, 10, 101))

	summary := e.MarketSummary("AAPL")
	require.True(t, summary.HasBid)
	require.True(t, summary.HasAsk)
	assert.Equal(t, 99.0, summary.BestBid)
	assert.Equal(t, 101.0, summary.BestAsk)
	assert.NotEqual(t, summary.BestBid, summary.BestAsk)
	assert.Equal(t, 100.0, summary.Mid)
	assert.Equal(t, 2.0, summary.Spread)
}

func TestEngine_SubmitBeforeStartFails(t *testing.T) {
	e := New()
	o := mustOrder(t, "o1", "A", "AAPL", common.Buy, 1, 100)
	err := e.Submit(o)
	assert.ErrorIs(t, err, common.ErrQueueClosed)
}

// Shares and cash are conserved across the whole trader universe: every
// fill moves quantity and cash between exactly two traders, so net position
// per symbol stays zero and total cash plus inventory marked at the traded
// VWAP equals total initial cash.
func TestConservation_SharesAndCash(t *testing.T) {
	e := New()
	const initialCash = 100000.0
	a := trader.New("A", initialCash, []string{"AAPL"}, e, trader.DefaultConfig())
	b := trader.New("B", initialCash, []string{"AAPL"}, e, trader.DefaultConfig())
	e.RegisterTrader(a)
	e.RegisterTrader(b)

	e.processOrder(mustOrder(t, "s1", "B", "AAPL", common.Sell, 5, 100))
	e.processOrder(mustOrder(t, "s2", "B", "AAPL", common.Sell, 5, 102))
	e.processOrder(mustOrder(t, "b1", "A", "AAPL", common.Buy, 10, 102))

	trades := e.AllTrades()
	require.Len(t, trades, 2)

	var notional float64
	var volume uint64
	for _, tr := range trades {
		notional += tr.Price * float64(tr.Quantity)
		volume += tr.Quantity
	}
	vwap := notional / float64(volume)

	snapA, snapB := a.Snapshot(), b.Snapshot()
	assert.Equal(t, int64(0), snapA.Positions["AAPL"]+snapB.Positions["AAPL"])

	totalValue := snapA.Cash + snapB.Cash +
		float64(snapA.Positions["AAPL"])*vwap +
		float64(snapB.Positions["AAPL"])*vwap
	assert.InDelta(t, 2*initialCash, totalValue, 1e-6)
}

func TestEngine_StartSubmitStop_EndToEnd(t *testing.T) {
	e := New()
	e.RegisterTrader(newRecordingTrader("A"))
	e.RegisterTrader(newRecordingTrader("B"))
	e.Start()
	defer e.Stop()

	buy, err := common.NewOrder("o1", "A", "AAPL", common.Buy, 10, 100)
	require.NoError(t, err)
	require.NoError(t, e.Submit(buy))

	sell, err := common.NewOrder("o2", "B", "AAPL", common.Sell, 10, 100)
	require.NoError(t, err)
	require.NoError(t, e.Submit(sell))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(e.AllTrades()) == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	trades := e.AllTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(10), trades[0].Quantity)

	stats := e.PerformanceStats()
	assert.Equal(t, uint64(1), stats.TotalTrades)
	assert.Equal(t, uint64(10), stats.TotalVolume)
	assert.Equal(t, 0, stats.ActiveOrders)
}
