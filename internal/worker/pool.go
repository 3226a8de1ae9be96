package worker

import (
	"context"
	"log/slog"
	"sync"

	"fetchd/internal/logging"
	"fetchd/internal/queue"
)

// Pool bounds concurrent pipeline executions with a slot semaphore. The
// scheduler owns job selection; the pool only enforces the global cap.
type Pool struct {
	pipeline *Pipeline
	logger   *slog.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	nextID int
}

// NewPool builds a pool with the given number of worker slots.
func NewPool(pipeline *Pipeline, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		pipeline: pipeline,
		logger:   logging.NewComponentLogger(logger, "worker-pool"),
		slots:    make(chan struct{}, size),
	}
}

// Available returns the number of free worker slots.
func (p *Pool) Available() int {
	return cap(p.slots) - len(p.slots)
}

// TrySubmit starts a pipeline run for the job if a slot is free. Returns
// false without blocking when the pool is saturated.
func (p *Pool) TrySubmit(ctx context.Context, job *queue.Job) bool {
	select {
	case p.slots <- struct{}{}:
	default:
		return false
	}

	p.mu.Lock()
	p.nextID++
	workerID := p.nextID
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		if err := p.pipeline.Run(ctx, job, workerID); err != nil {
			p.logger.Error("pipeline run aborted", logging.Args(
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(err),
			)...)
		}
	}()
	return true
}

// Wait blocks until all in-flight pipeline runs finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
