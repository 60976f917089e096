package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of work run by a pool worker.
type Task func(ctx context.Context) error

var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs tasks on a fixed set of workers. Tasks submitted with the same key
// always land on the same worker and therefore run in submission order.
type Pool struct {
	wg     sync.WaitGroup
	queues []chan Task
	quit   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		queues: make([]chan Task, workers),
		quit:   make(chan struct{}),
		log:    logger.With().Str("component", "worker_pool").Logger(),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Task, 64)
	}
	return p
}

func (p *Pool) Size() int { return len(p.queues) }

func (p *Pool) Start(ctx context.Context) {
	for i, q := range p.queues {
		p.wg.Add(1)
		go func(id int, q chan Task) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-q:
					p.run(ctx, id, task)
				}
			}
		}(i, q)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("task error")
	}
}

// Stop signals workers to exit and waits for the running tasks to finish.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit queues task on the worker owning key. It blocks while that worker's
// queue is full and gives up when ctx ends or the pool stops.
func (p *Pool) Submit(ctx context.Context, key int64, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	if key < 0 {
		key = -key
	}
	q := p.queues[key%int64(len(p.queues))]
	select {
	case q <- task:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
