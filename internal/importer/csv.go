package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"obsim/internal/common"
)

// Result reports the outcome of importing a batch of orders from CSV.
type Result struct {
	TotalRows     int
	RowsSubmitted int
	RowsFailed    int
	Errors        map[int]string
	Symbols       map[string]bool
	Traders       map[string]bool
}

var requiredColumns = []string{"trader_id", "symbol", "side", "quantity", "price"}

// Submit is the engine operation the importer drives per parsed row.
type Submit func(o *common.Order) error

// ImportOrders parses a CSV document with header row
// "trader_id,symbol,side,quantity,price[,timestamp]" (column order and
// case are both flexible; an optional timestamp column uses
// "YYYY-MM-DD HH:MM:SS") and calls submit for each valid row. A malformed
// or incomplete header aborts the whole import with ErrImportValidation;
// a bad individual row is recorded in Result.Errors and the import
// continues with the rest.
func ImportOrders(r io.Reader, newID func() string, submit Submit) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading header: %v", common.ErrImportValidation, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := col[required]; !ok {
			return Result{}, fmt.Errorf("%w: missing required column %q", common.ErrImportValidation, required)
		}
	}
	tsIdx, hasTimestamp := col["timestamp"]

	result := Result{
		Errors:  make(map[int]string),
		Symbols: make(map[string]bool),
		Traders: make(map[string]bool),
	}

	row := 0
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		row++
		result.TotalRows++
		if readErr != nil {
			result.RowsFailed++
			result.Errors[row] = readErr.Error()
			continue
		}
		if maxIdx := maxColumnIndex(col, tsIdx, hasTimestamp); maxIdx >= len(record) {
			result.RowsFailed++
			result.Errors[row] = "row has fewer columns than the header"
			continue
		}

		traderID := strings.TrimSpace(record[col["trader_id"]])
		symbol := strings.ToUpper(strings.TrimSpace(record[col["symbol"]]))
		sideStr := strings.ToUpper(strings.TrimSpace(record[col["side"]]))

		if traderID == "" || symbol == "" {
			result.RowsFailed++
			result.Errors[row] = "trader_id and symbol must not be empty"
			continue
		}

		var side common.Side
		switch sideStr {
		case "BUY":
			side = common.Buy
		case "SELL":
			side = common.Sell
		default:
			result.RowsFailed++
			result.Errors[row] = fmt.Sprintf("invalid side %q, must be BUY or SELL", sideStr)
			continue
		}

		qty, qtyErr := strconv.ParseUint(strings.TrimSpace(record[col["quantity"]]), 10, 64)
		if qtyErr != nil || qty == 0 {
			result.RowsFailed++
			result.Errors[row] = "quantity must be a positive integer"
			continue
		}

		price, priceErr := strconv.ParseFloat(strings.TrimSpace(record[col["price"]]), 64)
		if priceErr != nil || price <= 0 {
			result.RowsFailed++
			result.Errors[row] = "price must be a positive number"
			continue
		}

		order, err := common.NewOrder(newID(), traderID, symbol, side, qty, price)
		if err != nil {
			result.RowsFailed++
			result.Errors[row] = err.Error()
			continue
		}
		if hasTimestamp {
			if raw := strings.TrimSpace(record[tsIdx]); raw != "" {
				if ts, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
					order.CreatedAt = ts
				}
			}
		}

		if err := submit(order); err != nil {
			result.RowsFailed++
			result.Errors[row] = err.Error()
			continue
		}

		result.RowsSubmitted++
		result.Symbols[symbol] = true
		result.Traders[traderID] = true
	}

	return result, nil
}

func maxColumnIndex(col map[string]int, tsIdx int, hasTimestamp bool) int {
	max := 0
	for _, idx := range col {
		if idx > max {
			max = idx
		}
	}
	if hasTimestamp && tsIdx > max {
		max = tsIdx
	}
	return max
}
