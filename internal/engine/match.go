package engine

import (
	"time"

	"obsim/internal/book"
	"obsim/internal/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// processOrder runs the matching algorithm for one incoming order: walk the
// opposite side in price-time priority, applying fills until the order is
// no longer active, out of quantity, or the book no longer crosses, then
// rest any remainder on its own side. Only the matching worker goroutine
// calls this, so there is never more than one match in flight; the locking
// below exists solely to stay correct against concurrent Cancel calls.
func (e *Engine) processOrder(o *common.Order) {
	b := e.Orderbook(o.Symbol)

	e.ordersMu.Lock()
	e.orders[o.ID] = o
	e.ordersMu.Unlock()

	var opposite, same *book.Side
	if o.Side == common.Buy {
		opposite, same = b.Asks, b.Bids
	} else {
		opposite, same = b.Bids, b.Asks
	}

	for {
		e.ordersMu.Lock()
		active := o.IsActive() && o.Remaining > 0
		e.ordersMu.Unlock()
		if !active {
			break
		}

		r, ok := opposite.BestOrder()
		if !ok {
			break
		}
		if o.Side == common.Buy && r.Price > o.Price {
			break
		}
		if o.Side == common.Sell && r.Price < o.Price {
			break
		}

		e.ordersMu.Lock()
		if !o.IsActive() {
			e.ordersMu.Unlock()
			break
		}
		if !r.IsActive() {
			// r was cancelled between our peek and this lock. Remove it (a
			// no-op if Cancel already did) and look for the next best order.
			e.ordersMu.Unlock()
			opposite.Remove(r.ID)
			continue
		}

		qty := o.Remaining
		if r.Remaining < qty {
			qty = r.Remaining
		}
		price := r.Price

		if err := o.ApplyFill(qty, price); err != nil {
			log.Error().Err(err).Str("order", o.ID).Msg("overfill on aggressor order, aborting this order's match")
			e.ordersMu.Unlock()
			return
		}
		if err := r.ApplyFill(qty, price); err != nil {
			log.Error().Err(err).Str("order", r.ID).Msg("overfill on resting order, aborting this order's match")
			e.ordersMu.Unlock()
			return
		}

		restingFilled := r.Remaining == 0
		if restingFilled {
			delete(e.orders, r.ID)
		}
		e.ordersMu.Unlock()

		trade := common.Trade{
			ID:            uuid.NewString(),
			Time:          time.Now(),
			Symbol:        o.Symbol,
			Quantity:      qty,
			Price:         price,
			AggressorSide: o.Side,
		}
		if o.Side == common.Buy {
			trade.BuyerID, trade.BuyOrderID = o.TraderID, o.ID
			trade.SellerID, trade.SellOrderID = r.TraderID, r.ID
		} else {
			trade.BuyerID, trade.BuyOrderID = r.TraderID, r.ID
			trade.SellerID, trade.SellOrderID = o.TraderID, o.ID
		}

		b.RecordTrade(trade)
		e.recordTrade(trade)

		// Aggressor callback first, then maker, matching the order the
		// algorithm dispatches fills in.
		e.dispatchFill(o, qty, price)
		e.dispatchFill(r, qty, price)

		if restingFilled {
			opposite.Remove(r.ID)
		}
	}

	// Rest the remainder while still holding the active-order index lock, so
	// a racing Cancel either sees the order before it rests (and the add below
	// never runs) or after (and its book removal finds it). Index-then-book is
	// the fixed acquisition order; Cancel also takes the index lock first,
	// releasing it before it removes the order from the book.
	e.ordersMu.Lock()
	if o.IsActive() && o.Remaining > 0 {
		if err := same.Add(o); err != nil {
			log.Error().Err(err).Str("order", o.ID).Msg("failed to rest order, dropping it")
			delete(e.orders, o.ID)
		}
	} else {
		delete(e.orders, o.ID)
	}
	e.ordersMu.Unlock()

	e.recordLatency(time.Since(o.SubmittedAt))
}

// dispatchFill looks up the trader registered for o and calls its on_fill
// handler, isolating and logging a panic rather than letting a broken
// trader callback take down the matching worker.
func (e *Engine) dispatchFill(o *common.Order, qty uint64, price float64) {
	e.tradersMu.RLock()
	cb, ok := e.traders[o.TraderID]
	e.tradersMu.RUnlock()
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("trader", o.TraderID).
				Str("order", o.ID).
				Msg("trader on_fill callback panicked, isolating and continuing")
		}
	}()
	cb.OnFill(o, qty, price)
}
