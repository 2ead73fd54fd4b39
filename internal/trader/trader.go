package trader

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"obsim/internal/common"
	"obsim/internal/orderbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const stopTimeout = 2 * time.Second

// Submitter is the engine surface a trader needs: enough to submit orders
// and estimate a market price, without owning the engine itself.
type Submitter interface {
	Submit(o *common.Order) error
	RecentTradesFor(symbol string, n int) []common.Trade
	Orderbook(symbol string) *orderbook.Book
}

// Config tunes a trader's order-generation behaviour.
type Config struct {
	MinOrderSize    uint64
	MaxOrderSize    uint64
	PriceVolatility float64
	OrderFrequency  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinOrderSize:    10,
		MaxOrderSize:    100,
		PriceVolatility: 0.02,
		OrderFrequency:  500 * time.Millisecond,
	}
}

// HFTConfig tunes a trader toward much higher order frequency.
func HFTConfig() Config {
	c := DefaultConfig()
	c.OrderFrequency = 50 * time.Millisecond
	return c
}

// Stats is a read-only snapshot of a trader's book for reporting/export.
type Stats struct {
	TraderID     string
	Cash         float64
	Positions    map[string]int64
	OrdersSent   uint64
	OrdersFilled uint64
	TotalVolume  uint64
}

// Trader is a simulated algorithmic agent: it generates a stream of limit
// orders against an estimated market price on its own goroutine, and
// reconciles its own cash/position/cost basis as the engine reports fills
// back to it via OnFill. All mutable trader state is behind one mutex,
// since the generation loop and the engine's fill callback touch it from
// different goroutines.
type Trader struct {
	ID          string
	InitialCash float64
	Symbols     []string
	Config      Config

	engine Submitter
	rng    *rand.Rand

	mu           sync.Mutex
	cash         float64
	positions    map[string]int64
	avgCost      map[string]float64
	priceCache   map[string]float64
	ordersSent   uint64
	ordersFilled uint64
	totalVolume  uint64

	runMu  sync.Mutex
	active bool
	stop   chan struct{}
	done   chan struct{}
}

func New(id string, initialCash float64, symbols []string, engine Submitter, cfg Config) *Trader {
	positions := make(map[string]int64, len(symbols))
	avgCost := make(map[string]float64, len(symbols))
	priceCache := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		priceCache[s] = 100.0
	}
	seed := time.Now().UnixNano()
	for _, c := range id {
		seed = seed*31 + int64(c)
	}
	return &Trader{
		ID:          id,
		InitialCash: initialCash,
		Symbols:     symbols,
		Config:      cfg,
		engine:      engine,
		rng:         rand.New(rand.NewSource(seed)),
		cash:        initialCash,
		positions:   positions,
		avgCost:     avgCost,
		priceCache:  priceCache,
	}
}

func (tr *Trader) TraderID() string { return tr.ID }

// Start launches the order-generation loop on its own goroutine. Calling
// Start while already running is a no-op.
func (tr *Trader) Start() {
	tr.runMu.Lock()
	if tr.active {
		tr.runMu.Unlock()
		return
	}
	tr.active = true
	stop := make(chan struct{})
	done := make(chan struct{})
	tr.stop, tr.done = stop, done
	tr.runMu.Unlock()

	go tr.loop(stop, done)
}

// Stop signals the generation loop to exit and waits, bounded by a short
// timeout, for it to do so.
func (tr *Trader) Stop() {
	tr.runMu.Lock()
	if !tr.active {
		tr.runMu.Unlock()
		return
	}
	tr.active = false
	stop, done := tr.stop, tr.done
	tr.runMu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Warn().Str("trader", tr.ID).Msg("generation loop did not stop within timeout")
	}
}

func (tr *Trader) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		delay := time.Duration(tr.rng.ExpFloat64() * float64(tr.Config.OrderFrequency))
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}
		select {
		case <-stop:
			return
		default:
		}
		tr.generateOrder()
	}
}

func (tr *Trader) generateOrder() {
	if len(tr.Symbols) == 0 {
		return
	}
	symbol := tr.Symbols[tr.rng.Intn(len(tr.Symbols))]
	market := tr.estimateMarketPrice(symbol)

	tr.mu.Lock()
	cash := tr.cash
	position := tr.positions[symbol]
	tr.mu.Unlock()

	side := tr.decideSide(position)

	span := tr.Config.MaxOrderSize - tr.Config.MinOrderSize
	qty := tr.Config.MinOrderSize
	if span > 0 {
		qty += uint64(tr.rng.Int63n(int64(span) + 1))
	}

	variation := tr.rng.NormFloat64() * tr.Config.PriceVolatility
	var price float64
	if side == common.Buy {
		price = round2(market * (1 - math.Abs(variation)))
	} else {
		price = round2(market * (1 + math.Abs(variation)))
	}
	if price <= 0 {
		return
	}

	if side == common.Buy {
		if float64(qty)*price > cash {
			affordable := uint64(cash / price)
			if affordable < tr.Config.MinOrderSize {
				return
			}
			qty = affordable
		}
	} else if qty > uint64(position) {
		if uint64(position) < tr.Config.MinOrderSize {
			return
		}
		qty = uint64(position)
	}

	order, err := common.NewOrder(uuid.NewString(), tr.ID, symbol, side, qty, price)
	if err != nil {
		return
	}
	if err := tr.engine.Submit(order); err != nil {
		return
	}

	tr.mu.Lock()
	tr.ordersSent++
	tr.mu.Unlock()
}

func (tr *Trader) decideSide(position int64) common.Side {
	switch {
	case position > 500:
		if tr.rng.Float64() < 0.7 {
			return common.Sell
		}
		return common.Buy
	case position == 0:
		if tr.rng.Float64() < 0.7 {
			return common.Buy
		}
		return common.Sell
	default:
		if tr.rng.Float64() < 0.5 {
			return common.Buy
		}
		return common.Sell
	}
}

// estimateMarketPrice prefers the VWAP of the last five trades, falls back
// to the book's mid-price, and failing that takes a small multiplicative
// random walk from its last cached price.
func (tr *Trader) estimateMarketPrice(symbol string) float64 {
	trades := tr.engine.RecentTradesFor(symbol, 5)
	if len(trades) > 0 {
		var notional float64
		var qty uint64
		for _, t := range trades {
			notional += t.Price * float64(t.Quantity)
			qty += t.Quantity
		}
		if qty > 0 {
			price := notional / float64(qty)
			tr.cachePrice(symbol, price)
			return price
		}
	}

	book := tr.engine.Orderbook(symbol)
	if bid, okB := book.BestBid(); okB {
		if ask, okA := book.BestAsk(); okA {
			price := (bid + ask) / 2
			tr.cachePrice(symbol, price)
			return price
		}
	}

	tr.mu.Lock()
	price := tr.priceCache[symbol]
	tr.mu.Unlock()

	price *= 1 + tr.rng.NormFloat64()*0.01
	if price < 1.0 {
		price = 1.0
	}
	tr.cachePrice(symbol, price)
	return price
}

func (tr *Trader) cachePrice(symbol string, price float64) {
	tr.mu.Lock()
	tr.priceCache[symbol] = price
	tr.mu.Unlock()
}

// OnFill reconciles cash, position and cost basis against a single
// execution. Called from the engine's matching goroutine.
func (tr *Trader) OnFill(order *common.Order, qty uint64, price float64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	symbol := order.Symbol
	if order.Side == common.Buy {
		cost := float64(qty) * price
		tr.cash -= cost
		oldPos := tr.positions[symbol]
		oldBasis := tr.avgCost[symbol] * float64(oldPos)
		newPos := oldPos + int64(qty)
		tr.positions[symbol] = newPos
		if newPos > 0 {
			tr.avgCost[symbol] = (oldBasis + cost) / float64(newPos)
		}
	} else {
		tr.cash += float64(qty) * price
		tr.positions[symbol] -= int64(qty)
		if tr.positions[symbol] == 0 {
			tr.avgCost[symbol] = 0
		}
	}
	tr.ordersFilled++
	tr.totalVolume += qty
}

// PortfolioValue is cash plus the mark-to-market value of every position.
func (tr *Trader) PortfolioValue() float64 {
	tr.mu.Lock()
	cash := tr.cash
	positions := make(map[string]int64, len(tr.positions))
	for s, p := range tr.positions {
		positions[s] = p
	}
	tr.mu.Unlock()

	value := cash
	for symbol, pos := range positions {
		if pos != 0 {
			value += float64(pos) * tr.estimateMarketPrice(symbol)
		}
	}
	return value
}

func (tr *Trader) TotalPnL() float64 {
	return tr.PortfolioValue() - tr.InitialCash
}

// PositionPnL returns the mark-to-market PnL on a single symbol's position
// relative to its cost basis.
func (tr *Trader) PositionPnL(symbol string) float64 {
	tr.mu.Lock()
	pos := tr.positions[symbol]
	basis := tr.avgCost[symbol]
	tr.mu.Unlock()
	if pos == 0 {
		return 0
	}
	return float64(pos) * (tr.estimateMarketPrice(symbol) - basis)
}

func (tr *Trader) Snapshot() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	positions := make(map[string]int64, len(tr.positions))
	for s, p := range tr.positions {
		positions[s] = p
	}
	return Stats{
		TraderID:     tr.ID,
		Cash:         tr.cash,
		Positions:    positions,
		OrdersSent:   tr.ordersSent,
		OrdersFilled: tr.ordersFilled,
		TotalVolume:  tr.totalVolume,
	}
}

// FillRate is filled orders over sent orders, guarding the zero-sent case.
func (tr *Trader) FillRate() float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	sent := tr.ordersSent
	if sent == 0 {
		sent = 1
	}
	return float64(tr.ordersFilled) / float64(sent)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
