package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"obsim/internal/book"
	"obsim/internal/common"
)

var tradeHeader = []string{
	"Trade ID", "Timestamp", "Symbol", "Side", "Quantity", "Price", "Value",
	"Buyer ID", "Seller ID", "Buy Order ID", "Sell Order ID",
}

const timestampFormat = "2006-01-02 15:04:05.000000"

// WriteTrades renders trades as CSV: timestamps to microsecond precision,
// price to 4 decimals, value (quantity*price) to 2.
func WriteTrades(w io.Writer, trades []common.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.ID,
			t.Time.Format(timestampFormat),
			t.Symbol,
			t.AggressorSide.String(),
			fmt.Sprintf("%d", t.Quantity),
			fmt.Sprintf("%.4f", t.Price),
			fmt.Sprintf("%.2f", t.Value()),
			t.BuyerID,
			t.SellerID,
			t.BuyOrderID,
			t.SellOrderID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var snapshotHeader = []string{
	"Symbol", "Timestamp", "Side", "Price Level", "Price", "Quantity", "Order Count", "Cumulative Volume",
}

// WriteBookSnapshot renders one symbol's top-of-book levels as CSV: bids
// best-to-worst, then asks best-to-worst, with cumulative volume restarting
// at the start of each side.
func WriteBookSnapshot(w io.Writer, symbol string, ts time.Time, bids, asks []book.PriceLevelView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snapshotHeader); err != nil {
		return err
	}
	stamp := ts.Format(timestampFormat)
	if err := writeLevels(cw, symbol, stamp, "BID", bids); err != nil {
		return err
	}
	if err := writeLevels(cw, symbol, stamp, "ASK", asks); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeLevels(cw *csv.Writer, symbol, stamp, side string, levels []book.PriceLevelView) error {
	var cumulative uint64
	for i, lvl := range levels {
		cumulative += lvl.Quantity
		row := []string{
			symbol,
			stamp,
			side,
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.4f", lvl.Price),
			fmt.Sprintf("%d", lvl.Quantity),
			fmt.Sprintf("%d", lvl.OrderCount),
			fmt.Sprintf("%d", cumulative),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
