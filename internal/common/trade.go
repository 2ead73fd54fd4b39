package common

import (
	"fmt"
	"time"
)

// Trade is a single execution between two orders.
type Trade struct {
	ID            string
	Time          time.Time
	Symbol        string
	Quantity      uint64
	Price         float64
	AggressorSide Side

	BuyerID     string
	SellerID    string
	BuyOrderID  string
	SellOrderID string
}

func (t Trade) Value() float64 {
	return float64(t.Quantity) * t.Price
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade(%s %s %d@%.4f buyer=%s seller=%s)", t.ID, t.Symbol, t.Quantity, t.Price, t.BuyerID, t.SellerID)
}
