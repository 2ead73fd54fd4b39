// Command obsim runs an in-memory limit-order matching engine populated by
// simulated trading agents, optionally seeded from a CSV order file and
// exporting its trade tape and book snapshots on exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"obsim/internal/common"
	"obsim/internal/engine"
	"obsim/internal/export"
	"obsim/internal/gateway"
	"obsim/internal/importer"
	"obsim/internal/trader"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		symbolsFlag   = flag.String("symbols", "AAPL,MSFT,GOOG", "comma-separated symbols to trade")
		traderCount   = flag.Int("traders", 10, "number of simulated trader agents")
		initialCash   = flag.Float64("cash", 100000, "initial cash per trader")
		duration      = flag.Duration("duration", 30*time.Second, "how long to run the simulation")
		hft           = flag.Bool("hft", false, "use high-frequency trader order-generation tuning")
		importPath    = flag.String("import", "", "optional CSV file of orders to seed the book with before trading starts")
		exportTrades  = flag.String("export-trades", "", "optional path to write the trade tape CSV to on exit")
		exportBook    = flag.String("export-book", "", "optional path and symbol (symbol:path) to write a book snapshot CSV to on exit")
		gatewayAddr   = flag.String("gateway-addr", "", "optional address (host:port) to run a TCP CSV order gateway on")
		logPretty     = flag.Bool("pretty", true, "use a human-readable console log writer instead of JSON")
	)
	flag.Parse()

	if *logPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	symbols := splitSymbols(*symbolsFlag)

	eng := engine.New()
	eng.Start()
	defer eng.Stop()

	if *importPath != "" {
		seedFromCSV(eng, *importPath)
	}

	cfg := trader.DefaultConfig()
	if *hft {
		cfg = trader.HFTConfig()
	}

	traders := make([]*trader.Trader, 0, *traderCount)
	for i := 0; i < *traderCount; i++ {
		id := fmt.Sprintf("trader-%03d", i)
		tr := trader.New(id, *initialCash, symbols, eng, cfg)
		eng.RegisterTrader(tr)
		traders = append(traders, tr)
		tr.Start()
	}

	if *gatewayAddr != "" {
		gw := gateway.New(*gatewayAddr, eng)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := gw.Run(ctx); err != nil {
				log.Error().Err(err).Msg("gateway stopped")
			}
		}()
	}

	log.Info().
		Strs("symbols", symbols).
		Int("traders", *traderCount).
		Dur("duration", *duration).
		Bool("hft", *hft).
		Msg("obsim running")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-time.After(*duration):
		log.Info().Msg("run duration elapsed")
	case <-ctx.Done():
		log.Info().Msg("interrupted")
	}

	for _, tr := range traders {
		tr.Stop()
	}

	stats := eng.PerformanceStats()
	log.Info().
		Uint64("total_trades", stats.TotalTrades).
		Uint64("total_volume", stats.TotalVolume).
		Float64("trades_per_second", stats.TradesPerSecond).
		Float64("orders_per_second", stats.OrdersPerSecond).
		Float64("avg_latency_ms", stats.AvgLatencyMs).
		Int("active_orders", stats.ActiveOrders).
		Float64("runtime_seconds", stats.RuntimeSeconds).
		Int("symbols_active", stats.SymbolsActive).
		Msg("final performance stats")

	if *exportTrades != "" {
		writeTradesFile(eng, *exportTrades)
	}
	if *exportBook != "" {
		writeBookSnapshotFile(eng, *exportBook)
	}
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func seedFromCSV(eng *engine.Engine, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open import CSV")
		return
	}
	defer f.Close()

	result, err := importer.ImportOrders(f, uuid.NewString, func(o *common.Order) error {
		return eng.Submit(o)
	})
	if err != nil {
		log.Error().Err(err).Msg("CSV import failed")
		return
	}
	log.Info().
		Int("submitted", result.RowsSubmitted).
		Int("failed", result.RowsFailed).
		Int("total_rows", result.TotalRows).
		Msg("CSV import complete")
}

func writeTradesFile(eng *engine.Engine, path string) {
	f, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to create trade export file")
		return
	}
	defer f.Close()

	if err := export.WriteTrades(f, eng.AllTrades()); err != nil {
		log.Error().Err(err).Msg("failed to write trade export")
		return
	}
	log.Info().Str("path", path).Msg("trade tape exported")
}

func writeBookSnapshotFile(eng *engine.Engine, spec string) {
	symbol, path, ok := strings.Cut(spec, ":")
	if !ok {
		log.Error().Str("export-book", spec).Msg("expected symbol:path")
		return
	}
	f, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to create snapshot export file")
		return
	}
	defer f.Close()

	snap := eng.Orderbook(strings.ToUpper(symbol)).Snapshot(depthFromEnv())
	if err := export.WriteBookSnapshot(f, snap.Symbol, time.Now(), snap.Bids, snap.Asks); err != nil {
		log.Error().Err(err).Msg("failed to write snapshot export")
		return
	}
	log.Info().Str("path", path).Str("symbol", symbol).Msg("book snapshot exported")
}

func depthFromEnv() int {
	if raw := os.Getenv("OBSIM_SNAPSHOT_DEPTH"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 10
}
