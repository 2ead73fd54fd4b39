package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultTaskChanSize = 100

// WorkFunc actions a single task handed off by the pool. Returning an error
// logs it; the worker keeps running.
type WorkFunc func(t *tomb.Tomb, task any) error

// Pool runs a fixed number of goroutines pulling tasks off a shared
// channel, supervised by a tomb so the whole pool winds down together.
type Pool struct {
	n     int
	tasks chan any
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{n: size, tasks: make(chan any, defaultTaskChanSize)}
}

// AddTask enqueues a task for some worker to pick up. Blocks if the
// channel is full, applying backpressure to the caller.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Run launches the pool's workers under t and blocks until t is dying.
func (p *Pool) Run(t *tomb.Tomb, work WorkFunc) {
	log.Info().Int("workers", p.n).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
	<-t.Dying()
}

func (p *Pool) worker(t *tomb.Tomb, work WorkFunc) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker pool task failed")
			}
		}
	}
}
