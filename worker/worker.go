// Package worker runs jobs off the event loop on a fixed set of
// goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"emperror.dev/errors"
)

// ErrStopped is returned when submitting to a stopped pool.
const ErrStopped = errors.Sentinel("worker pool stopped")

// Job is one unit of work. A returned error is logged.
type Job func(ctx context.Context) error

// Pool manages a fixed number of workers and a bounded job queue.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	log        *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a pool. Nothing runs until Start.
func New(maxWorkers, queueSize int, logger *slog.Logger) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		jobs:       make(chan Job, queueSize),
		maxWorkers: maxWorkers,
		log:        logger.With(slog.String("component", "worker")),
	}
}

// Start launches the workers. Jobs receive a context derived from ctx that
// is cancelled by Stop once the queue has drained.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 1; i <= p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a job, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a job unless the queue is full, reporting whether it
// was accepted.
func (p *Pool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int { return len(p.jobs) }

// Stop refuses new jobs, waits for queued ones to finish and stops the
// workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(ctx, id, job)
	}
}

func (p *Pool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", "worker", id, "panic", r)
		}
	}()
	if err := job(ctx); err != nil {
		p.log.Warn("job failed", "worker", id, "error", err)
	}
}
