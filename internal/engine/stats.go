package engine

import (
	"time"

	"obsim/internal/common"
)

// PerformanceStats is an internally consistent, point-in-time snapshot of
// the engine's throughput and latency counters.
type PerformanceStats struct {
	TotalTrades     uint64
	TotalVolume     uint64
	TradesPerSecond float64
	OrdersPerSecond float64
	AvgLatencyMs    float64
	ActiveOrders    int
	RuntimeSeconds  float64
	SymbolsActive   int
}

// recordTrade updates the global trade tape and trade/volume counters.
// Called from the matching goroutine only, but guarded anyway since readers
// of PerformanceStats run concurrently.
func (e *Engine) recordTrade(trade common.Trade) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.tape.Append(trade)
	e.totalTrades++
	e.totalVolume += trade.Quantity
}

func (e *Engine) recordLatency(d time.Duration) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.ordersSeen++
	e.latencySum += d
	e.latencyCount++
}
