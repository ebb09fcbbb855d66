package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Submit when the job queue has no room left.
var ErrQueueFull = errors.New("worker queue is full")

// Job is one unit of background work. The context is cancelled when the
// pool shuts down; jobs are expected to observe it and return.
type Job func(ctx context.Context)

// Pool runs submitted jobs on a fixed set of workers. It replaces detached
// goroutines for work that outlives its originating request, so shutdown
// is a cancel-and-wait instead of a guess.
type Pool struct {
	log     *slog.Logger
	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers int
}

func NewPool(workers, queueSize int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		log:     log,
		jobs:    make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		workers: workers,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("worker pool started", "workers", p.workers, "queue", cap(p.jobs))
}

// Submit enqueues a job without blocking the caller.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the shared context and waits for in-flight jobs to observe it.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			job(p.ctx)
		}
	}
}
