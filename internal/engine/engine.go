package engine

import (
	"sync"
	"time"

	"obsim/internal/common"
	"obsim/internal/orderbook"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// DefaultBatchSize bounds how many orders the matching worker drains per
// wake, to amortise queue-coordination cost without changing semantics:
// orders are still matched one at a time, in the order they were dequeued.
const DefaultBatchSize = 100

// GlobalTapeDepth bounds the engine-wide recent-trade tape, independent of
// each symbol's own per-book tape.
const GlobalTapeDepth = 10000

const stopTimeout = 2 * time.Second

// TraderCallback is the handle a registered trader exposes so the engine
// can dispatch fill notifications inline on the matching goroutine.
// Implementations must return quickly and must not call back into the
// engine synchronously.
type TraderCallback interface {
	TraderID() string
	OnFill(order *common.Order, qty uint64, price float64)
}

// Engine owns every symbol's order book, the active-order index, the
// trader registry, the ingest queue and the global trade tape. It is the
// sole mutator of order and book state once an order has been submitted;
// every public query is safe to call concurrently with matching.
//
// Locking partitions and their fixed acquisition order: trader registry,
// active-order index, tape/counters, book sides (each side guards itself).
// The only place two are held at once is the matching worker resting an
// order on a book side while it holds the active-order index lock.
type Engine struct {
	queue     *orderQueue
	batchSize int
	t         *tomb.Tomb

	booksMu sync.RWMutex
	books   map[string]*orderbook.Book

	ordersMu sync.Mutex
	orders   map[string]*common.Order

	tradersMu sync.RWMutex
	traders   map[string]TraderCallback

	statsMu      sync.Mutex
	tape         *common.Ring[common.Trade]
	totalTrades  uint64
	totalVolume  uint64
	ordersSeen   uint64
	latencySum   time.Duration
	latencyCount uint64

	stateMu   sync.Mutex
	running   bool
	startedAt time.Time
}

func New() *Engine {
	return &Engine{
		queue:     newOrderQueue(),
		batchSize: DefaultBatchSize,
		books:     make(map[string]*orderbook.Book),
		orders:    make(map[string]*common.Order),
		traders:   make(map[string]TraderCallback),
		tape:      common.NewRing[common.Trade](GlobalTapeDepth),
	}
}

// RegisterTrader stores a non-owning handle used to dispatch fill
// callbacks for orders submitted under cb.TraderID().
func (e *Engine) RegisterTrader(cb TraderCallback) {
	e.tradersMu.Lock()
	defer e.tradersMu.Unlock()
	e.traders[cb.TraderID()] = cb
}

// Orderbook returns the book for symbol, creating it on first use.
func (e *Engine) Orderbook(symbol string) *orderbook.Book {
	e.booksMu.RLock()
	b, ok := e.books[symbol]
	e.booksMu.RUnlock()
	if ok {
		return b
	}

	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if b, ok = e.books[symbol]; ok {
		return b
	}
	b = orderbook.New(symbol)
	e.books[symbol] = b
	return b
}

// Symbols returns every symbol that has had a book created for it.
func (e *Engine) Symbols() []string {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

func (e *Engine) isRunning() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.running
}

// Start launches the single matching worker. Calling Start on an already
// running engine is a no-op: the engine must be started explicitly, it
// never starts lazily on first submit.
func (e *Engine) Start() {
	e.stateMu.Lock()
	if e.running {
		e.stateMu.Unlock()
		return
	}
	e.running = true
	e.startedAt = time.Now()
	e.stateMu.Unlock()

	e.t = &tomb.Tomb{}
	e.t.Go(func() error {
		return e.runWorker(e.t)
	})
}

// Stop closes the ingest queue and waits, bounded by a short timeout, for
// the matching worker to finish draining and exit.
func (e *Engine) Stop() {
	e.stateMu.Lock()
	if !e.running {
		e.stateMu.Unlock()
		return
	}
	e.running = false
	e.stateMu.Unlock()

	e.queue.close()
	select {
	case <-e.t.Dead():
	case <-time.After(stopTimeout):
		log.Warn().Msg("matching worker did not stop within the shutdown timeout")
	}
}

// Submit stamps the submission time and enqueues order for matching. It
// returns immediately; match results, if any, arrive later via fill
// callbacks on the order's trader.
func (e *Engine) Submit(o *common.Order) error {
	if !e.isRunning() {
		return common.ErrQueueClosed
	}
	o.SubmittedAt = time.Now()
	return e.queue.push(o)
}

// Cancel marks order id cancelled and removes it from its resting side, if
// it is still active. The active-order index lock is the single arbiter of
// a race with the matching worker: whichever side wins the lock first
// decides whether the order cancels or fills, and it never does both for
// the same quantity.
func (e *Engine) Cancel(id string) (bool, error) {
	e.ordersMu.Lock()
	o, ok := e.orders[id]
	if !ok {
		e.ordersMu.Unlock()
		return false, common.ErrUnknownOrder
	}
	if !o.IsActive() {
		e.ordersMu.Unlock()
		return false, nil
	}
	o.Cancel()
	delete(e.orders, id)
	e.ordersMu.Unlock()

	e.Orderbook(o.Symbol).RemoveOrder(o.ID, o.Side)
	return true, nil
}

// ActiveOrder looks up a still-live order by id.
func (e *Engine) ActiveOrder(id string) (*common.Order, bool) {
	e.ordersMu.Lock()
	defer e.ordersMu.Unlock()
	o, ok := e.orders[id]
	return o, ok
}

// MarketSummary reports symbol's best bid and best ask as two distinct
// values (and their mid/spread when both sides are populated), rather than
// collapsing both into a single mid-price.
type MarketSummary struct {
	Symbol  string
	BestBid float64
	BestAsk float64
	HasBid  bool
	HasAsk  bool
	Mid     float64
	Spread  float64
}

func (e *Engine) MarketSummary(symbol string) MarketSummary {
	b := e.Orderbook(symbol)
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	summary := MarketSummary{Symbol: symbol, BestBid: bid, BestAsk: ask, HasBid: okB, HasAsk: okA}
	if okB && okA {
		summary.Mid = (bid + ask) / 2
		summary.Spread = ask - bid
	}
	return summary
}

// RecentTrades returns up to n of the engine-wide most recent trades across
// all symbols, oldest first.
func (e *Engine) RecentTrades(n int) []common.Trade {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.tape.Recent(n)
}

// RecentTradesFor returns up to n of symbol's most recent trades.
func (e *Engine) RecentTradesFor(symbol string, n int) []common.Trade {
	return e.Orderbook(symbol).RecentTrades(n)
}

// AllTrades returns every trade retained in the engine-wide tape.
func (e *Engine) AllTrades() []common.Trade {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.tape.All()
}

// PerformanceStats reports a consistent snapshot of throughput and latency
// counters. Each partition is locked and released in turn, so this never
// holds more than one of the engine's locks at a time; the values read
// from different partitions are therefore not taken at a single instant.
func (e *Engine) PerformanceStats() PerformanceStats {
	e.ordersMu.Lock()
	active := len(e.orders)
	e.ordersMu.Unlock()

	e.booksMu.RLock()
	symbols := len(e.books)
	e.booksMu.RUnlock()

	e.stateMu.Lock()
	runtime := time.Since(e.startedAt).Seconds()
	e.stateMu.Unlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	var avgLatencyMs, tps, ops float64
	if e.latencyCount > 0 {
		avgLatencyMs = float64(e.latencySum.Microseconds()) / 1000 / float64(e.latencyCount)
	}
	if runtime > 0 {
		tps = float64(e.totalTrades) / runtime
		ops = float64(e.ordersSeen) / runtime
	}
	return PerformanceStats{
		TotalTrades:     e.totalTrades,
		TotalVolume:     e.totalVolume,
		TradesPerSecond: tps,
		OrdersPerSecond: ops,
		AvgLatencyMs:    avgLatencyMs,
		ActiveOrders:    active,
		RuntimeSeconds:  runtime,
		SymbolsActive:   symbols,
	}
}
