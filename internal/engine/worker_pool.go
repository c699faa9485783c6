package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

// WorkerPool runs probe jobs on a bounded ants pool.
type WorkerPool struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	logger *slog.Logger

	// Stats
	completed atomic.Int64
	failed    atomic.Int64
	startTime time.Time
}

// NewWorkerPool creates a pool with the given number of workers.
// A panicking task counts as failed and does not take the pool down.
func NewWorkerPool(workers int, logger *slog.Logger) (*WorkerPool, error) {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &WorkerPool{logger: logger, startTime: time.Now()}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(r any) {
		p.failed.Add(1)
		p.logger.Error("job panic", "err", r)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Submit queues a task, blocking while every worker is busy.
func (p *WorkerPool) Submit(task func() error) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		if err := task(); err != nil {
			p.failed.Add(1)
			p.logger.Debug("job failed", "err", err)
			return
		}
		p.completed.Add(1)
	})
	if err != nil {
		p.wg.Done()
		return fmt.Errorf("submit job: %w", err)
	}
	return nil
}

// Wait blocks until all submitted tasks are complete.
func (p *WorkerPool) Wait() error {
	p.wg.Wait()

	if failed := p.failed.Load(); failed > 0 {
		return fmt.Errorf("%d/%d jobs failed", failed, failed+p.completed.Load())
	}
	return nil
}

// Stop releases the pool's workers.
func (p *WorkerPool) Stop() {
	p.pool.Release()
}

// Stats returns current statistics.
func (p *WorkerPool) Stats() (completed, failed int64, elapsed time.Duration) {
	return p.completed.Load(), p.failed.Load(), time.Since(p.startTime)
}
