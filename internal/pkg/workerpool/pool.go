package workerpool

import (
	"errors"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned when submitting to a released pool
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a bounded goroutine pool for background maintenance work.
// Tasks are fire-and-forget; panics are recovered and logged.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger
}

// New creates a pool with the given number of workers
func New(workers int, logger *zap.Logger) (*Pool, error) {
	if workers <= 0 {
		workers = 8
	}

	p, err := ants.NewPool(workers,
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v interface{}) {
			if logger != nil {
				logger.Error("worker task panic", zap.Any("panic", v))
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{pool: p, logger: logger}, nil
}

// Submit schedules a task, blocking while all workers are busy
func (p *Pool) Submit(task func()) error {
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}
	return p.pool.Submit(task)
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the pool and waits for running tasks to finish
func (p *Pool) Release() {
	p.pool.Release()
}
