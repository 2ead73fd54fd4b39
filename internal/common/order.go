package common

import (
	"fmt"
	"time"
)

// Side is which side of the book an order rests on or crosses against.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// OrderStatus is an order's position in its fill lifecycle.
type OrderStatus int

const (
	Pending OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Fill records one execution against an order.
type Fill struct {
	Quantity uint64
	Price    float64
	Time     time.Time
}

// Order is the mutable record of a single resting or in-flight limit order.
// Identity fields (ID, TraderID, Symbol, Side, Price, OriginalQty) are set
// once at creation and never change. Remaining, Status and Fills are
// mutated only by the matching engine, under its active-order index lock.
type Order struct {
	ID          string
	TraderID    string
	Symbol      string
	Side        Side
	Price       float64
	OriginalQty uint64

	Remaining uint64
	Status    OrderStatus
	Fills     []Fill

	CreatedAt   time.Time
	SubmittedAt time.Time
}

// NewOrder validates and constructs a new resting-eligible order. id is
// supplied by the caller (a trader or importer assigns it) rather than
// generated here, so callers can control their own ID scheme.
func NewOrder(id, traderID, symbol string, side Side, qty uint64, price float64) (*Order, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: order id must not be empty", ErrInvalidArgument)
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol must not be empty", ErrInvalidArgument)
	}
	if qty == 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	return &Order{
		ID:          id,
		TraderID:    traderID,
		Symbol:      symbol,
		Side:        side,
		Price:       price,
		OriginalQty: qty,
		Remaining:   qty,
		Status:      Pending,
		CreatedAt:   time.Now(),
	}, nil
}

// ApplyFill records an execution of qty shares at price. It is the only way
// Remaining or Status change during an order's active life.
func (o *Order) ApplyFill(qty uint64, price float64) error {
	if qty == 0 {
		return nil
	}
	if qty > o.Remaining {
		return fmt.Errorf("%w: fill of %d exceeds remaining %d on order %s", ErrOverFill, qty, o.Remaining, o.ID)
	}
	o.Fills = append(o.Fills, Fill{Quantity: qty, Price: price, Time: time.Now()})
	o.Remaining -= qty
	if o.Remaining == 0 {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
	return nil
}

// Cancel transitions the order to Cancelled. It is a no-op once the order
// has reached a terminal state.
func (o *Order) Cancel() {
	if o.Status == Pending || o.Status == PartiallyFilled {
		o.Status = Cancelled
	}
}

func (o *Order) IsActive() bool {
	return o.Status == Pending || o.Status == PartiallyFilled
}

// FilledQuantity returns how much of OriginalQty has executed.
func (o *Order) FilledQuantity() uint64 {
	return o.OriginalQty - o.Remaining
}

// AverageFillPrice returns the quantity-weighted average price across all
// fills, or zero if the order has not traded.
func (o *Order) AverageFillPrice() float64 {
	var qty uint64
	var notional float64
	for _, f := range o.Fills {
		qty += f.Quantity
		notional += f.Price * float64(f.Quantity)
	}
	if qty == 0 {
		return 0
	}
	return notional / float64(qty)
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(%s %s %s %d/%d@%.4f %s)", o.ID, o.Symbol, o.Side, o.Remaining, o.OriginalQty, o.Price, o.Status)
}
