package book

import (
	"container/list"
	"sync"

	"obsim/internal/common"

	"github.com/tidwall/btree"
)

// priceLevel holds every resting order at one price, in strict FIFO arrival
// order.
type priceLevel struct {
	price  float64
	orders *list.List // element value: *common.Order
}

type location struct {
	level *priceLevel
	elem  *list.Element
}

// PriceLevelView is a read-only, aggregated snapshot of one price level.
type PriceLevelView struct {
	Price      float64
	Quantity   uint64
	OrderCount int
}

// Side is the priority structure over all resting orders on one side (bid
// or ask) of a single symbol's book. The price levels are kept in a
// balanced tree ordered so that the best price is always the tree minimum,
// regardless of which side it is; within a level, orders queue FIFO. An
// id-to-location index makes cancel and fill-driven removal O(log n)
// instead of a linear scan.
type Side struct {
	mu     sync.RWMutex
	side   common.Side
	levels *btree.BTreeG[*priceLevel]
	index  map[string]location
}

func lessFor(side common.Side) func(a, b *priceLevel) bool {
	if side == common.Buy {
		// Bids: best price is the highest, so descending order makes it the
		// tree minimum.
		return func(a, b *priceLevel) bool { return a.price > b.price }
	}
	// Asks: best price is the lowest, ascending order makes it the minimum.
	return func(a, b *priceLevel) bool { return a.price < b.price }
}

func NewSide(side common.Side) *Side {
	return &Side{
		side:   side,
		levels: btree.NewBTreeG(lessFor(side)),
		index:  make(map[string]location),
	}
}

// Add rests o on this side at its limit price, appending to the back of its
// price level's FIFO queue.
func (s *Side) Add(o *common.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lvl, ok := s.levels.GetMut(&priceLevel{price: o.Price})
	if !ok {
		lvl = &priceLevel{price: o.Price, orders: list.New()}
		s.levels.Set(lvl)
	}
	elem := lvl.orders.PushBack(o)
	s.index[o.ID] = location{level: lvl, elem: elem}
	return nil
}

// Remove takes an order off this side by id. It is idempotent: removing an
// id that is not present (already removed by a concurrent fill or cancel)
// is a harmless no-op reporting false.
func (s *Side) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.index[id]
	if !ok {
		return false
	}
	loc.level.orders.Remove(loc.elem)
	delete(s.index, id)
	if loc.level.orders.Len() == 0 {
		s.levels.Delete(loc.level)
	}
	return true
}

// BestPrice returns the best (highest bid / lowest ask) resting price.
func (s *Side) BestPrice() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lvl, ok := s.levels.Min()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// BestOrder returns the order at the front of the best price level's FIFO
// queue, without removing it.
func (s *Side) BestOrder() (*common.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lvl, ok := s.levels.Min()
	if !ok || lvl.orders.Len() == 0 {
		return nil, false
	}
	return lvl.orders.Front().Value.(*common.Order), true
}

// TopLevels returns up to n price levels, best first, each aggregated into
// total resting quantity and order count.
func (s *Side) TopLevels(n int) []PriceLevelView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]PriceLevelView, 0, n)
	s.levels.Scan(func(lvl *priceLevel) bool {
		if len(views) >= n {
			return false
		}
		views = append(views, PriceLevelView{
			Price:      lvl.price,
			Quantity:   levelQuantity(lvl),
			OrderCount: lvl.orders.Len(),
		})
		return true
	})
	return views
}

func levelQuantity(lvl *priceLevel) uint64 {
	var qty uint64
	for e := lvl.orders.Front(); e != nil; e = e.Next() {
		qty += e.Value.(*common.Order).Remaining
	}
	return qty
}

// TotalVolume sums the remaining quantity of every resting order on this
// side.
func (s *Side) TotalVolume() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	s.levels.Scan(func(lvl *priceLevel) bool {
		total += levelQuantity(lvl)
		return true
	})
	return total
}

// Len returns the number of resting orders on this side.
func (s *Side) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Levels returns the number of distinct price levels on this side.
func (s *Side) Levels() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.levels.Len()
}
