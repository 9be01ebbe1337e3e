// Package tasks runs named background work detached from the request path.
//
// The ingest path hands storage fan-out and stream publishing to this pool
// so the HTTP response never waits on them. The pool is bounded: a full
// queue rejects the submission rather than growing without limit, and
// shutdown drains queued work before the process exits.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one unit of background work. The context it receives is detached
// from the originating request and only cancelled at pool shutdown.
type Task struct {
	Name      string
	RequestID string
	Run       func(ctx context.Context)
}

// Pool executes background tasks on a fixed set of workers.
type Pool struct {
	queue  chan Task
	logger *slog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
	rejected atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}
	cancel   context.CancelFunc
}

// NewPool starts workers draining a queue of the given capacity.
func NewPool(workers, capacity int, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:   make(chan Task, capacity),
		logger:  logger.With("component", "task_pool"),
		stopped: make(chan struct{}),
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(ctx)
	}
	return p
}

// Submit queues a task. Returns false when the pool is full or stopped;
// the caller decides whether rejection is tolerable.
func (p *Pool) Submit(task Task) bool {
	select {
	case <-p.stopped:
		return false
	default:
	}

	select {
	case p.queue <- task:
		return true
	default:
		p.rejected.Add(1)
		p.logger.Warn("task queue full, rejecting",
			"task", task.Name, "request_id", task.RequestID)
		return false
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.queue {
		p.inFlight.Add(1)
		start := time.Now()
		task.Run(ctx)
		p.inFlight.Add(-1)

		p.logger.Debug("task complete",
			"task", task.Name,
			"request_id", task.RequestID,
			"duration", time.Since(start))
	}
}

// QueueDepth reports how many tasks are waiting for a worker.
func (p *Pool) QueueDepth() int { return len(p.queue) }

// InFlight reports how many tasks are currently executing.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Rejected reports how many submissions the bounded queue refused.
func (p *Pool) Rejected() int64 { return p.rejected.Load() }

// Stop closes intake and waits for queued tasks up to the timeout. Tasks
// still running when the timeout expires have their context cancelled.
func (p *Pool) Stop(timeout time.Duration) {
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.queue)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			p.logger.Warn("drain timeout, cancelling remaining tasks",
				"in_flight", p.InFlight(), "queued", p.QueueDepth())
			p.cancel()
			<-done
		}
		p.cancel()
	})
}
