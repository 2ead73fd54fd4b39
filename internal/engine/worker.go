package engine

import (
	"obsim/internal/common"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// runWorker is the engine's single matching worker. One goroutine, not a
// pool: price-time priority within and across symbols is easiest to reason
// about when exactly one goroutine ever mutates book state. It drains up to
// batchSize orders per wake to amortise queue-coordination cost; this never
// changes matching semantics, since each order is still matched completely
// before the next one starts.
func (e *Engine) runWorker(t *tomb.Tomb) error {
	log.Info().Msg("matching worker starting")
	defer log.Info().Msg("matching worker stopped")

	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		head, ok := e.queue.pop()
		if !ok {
			return nil
		}

		batch := make([]*common.Order, 0, e.batchSize)
		batch = append(batch, head)
		batch = append(batch, e.queue.drainBatch(e.batchSize-1)...)

		for _, o := range batch {
			e.processOrder(o)
		}
	}
}
