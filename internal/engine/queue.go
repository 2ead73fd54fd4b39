package engine

import (
	"container/list"
	"sync"

	"obsim/internal/common"
)

// orderQueue is an unbounded, multi-producer single-consumer FIFO of orders
// awaiting matching. No library in the surrounding stack offers an MPSC
// queue, so this is a small hand-rolled one over sync.Cond: push never
// blocks beyond the internal mutex, pop blocks until an item is available
// or the queue is closed and drained.
type orderQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

func newOrderQueue() *orderQueue {
	q := &orderQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues an order for matching. It returns ErrQueueClosed once the
// queue has been closed.
func (q *orderQueue) push(o *common.Order) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return common.ErrQueueClosed
	}
	q.items.PushBack(o)
	q.cond.Signal()
	return nil
}

// pop blocks until an order is available or the queue is closed and empty,
// in which case ok is false.
func (q *orderQueue) pop() (*common.Order, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
	e := q.items.Front()
	q.items.Remove(e)
	return e.Value.(*common.Order), true
}

// drainBatch pops up to n further orders without blocking, so the worker
// can amortise wakeup cost across a batch.
func (q *orderQueue) drainBatch(n int) []*common.Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 {
		return nil
	}
	batch := make([]*common.Order, 0, n)
	for len(batch) < n && q.items.Len() > 0 {
		e := q.items.Front()
		q.items.Remove(e)
		batch = append(batch, e.Value.(*common.Order))
	}
	return batch
}

// len reports the queue depth, for tests and diagnostics only.
func (q *orderQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *orderQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
