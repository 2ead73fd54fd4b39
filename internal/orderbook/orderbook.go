package orderbook

import (
	"sync"

	"obsim/internal/book"
	"obsim/internal/common"
)

// DefaultTapeDepth bounds the per-symbol recent-trade tape.
const DefaultTapeDepth = 1000

// Snapshot is a read-only, point-in-time view of both sides of one symbol's
// book, suitable for export or display.
type Snapshot struct {
	Symbol string
	Bids   []book.PriceLevelView
	Asks   []book.PriceLevelView
}

// Book is the two-sided order book for a single symbol, plus its own
// bounded trade tape. The matching engine is the sole writer; Bids and Asks
// each guard themselves for concurrent readers.
type Book struct {
	Symbol string
	Bids   *book.Side
	Asks   *book.Side

	tapeMu sync.Mutex
	tape   *common.Ring[common.Trade]
}

func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		Bids:   book.NewSide(common.Buy),
		Asks:   book.NewSide(common.Sell),
		tape:   common.NewRing[common.Trade](DefaultTapeDepth),
	}
}

// AddOrder rests o on the side matching its Side field. It fails with
// ErrSymbolMismatch if o belongs to a different symbol than this book.
func (b *Book) AddOrder(o *common.Order) error {
	if o.Symbol != b.Symbol {
		return common.ErrSymbolMismatch
	}
	if o.Side == common.Buy {
		return b.Bids.Add(o)
	}
	return b.Asks.Add(o)
}

// RemoveOrder takes an order off the named side by id.
func (b *Book) RemoveOrder(id string, side common.Side) bool {
	if side == common.Buy {
		return b.Bids.Remove(id)
	}
	return b.Asks.Remove(id)
}

func (b *Book) BestBid() (float64, bool) { return b.Bids.BestPrice() }
func (b *Book) BestAsk() (float64, bool) { return b.Asks.BestPrice() }

// Spread returns BestAsk - BestBid, or false if either side is empty.
func (b *Book) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask - bid, true
}

// MidPrice returns the arithmetic mean of best bid and best ask, or false
// if either side is empty.
func (b *Book) MidPrice() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// IsCrossed reports whether the best bid is at or above the best ask, which
// should never be observable between matching passes.
func (b *Book) IsCrossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return false
	}
	return bid >= ask
}

// Snapshot captures up to depth price levels on each side.
func (b *Book) Snapshot(depth int) Snapshot {
	return Snapshot{Symbol: b.Symbol, Bids: b.Bids.TopLevels(depth), Asks: b.Asks.TopLevels(depth)}
}

// RecordTrade appends a trade to this symbol's tape.
func (b *Book) RecordTrade(t common.Trade) {
	b.tapeMu.Lock()
	defer b.tapeMu.Unlock()
	b.tape.Append(t)
}

// RecentTrades returns up to n of this symbol's most recent trades, oldest
// first.
func (b *Book) RecentTrades(n int) []common.Trade {
	b.tapeMu.Lock()
	defer b.tapeMu.Unlock()
	return b.tape.Recent(n)
}
