package worker

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is a unit of background work.
type Job = func(ctx context.Context)

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	name    string
	workers int
	queue   chan Job
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewPool creates a pool. Submit drops jobs once queueSize are pending.
func NewPool(name string, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan Job, queueSize),
		logger:  logger.Named("pool").With(zap.String("pool", name)),
	}
}

// Submit enqueues job without blocking. It reports false when the queue is full.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("queue full, job dropped", zap.Int("capacity", cap(p.queue)))
		return false
	}
}

// Dropped returns the number of rejected jobs.
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}

// Run processes jobs until ctx is cancelled. Jobs still queued at shutdown are
// drained with a cancelled context so they can return quickly.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("pool started", zap.Int("workers", p.workers))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-p.queue:
					p.run(gctx, job)
				}
			}
		})
	}
	err := g.Wait()

	for {
		select {
		case job := <-p.queue:
			p.run(gctx, job)
		default:
			p.logger.Info("pool stopped")
			return err
		}
	}
}

func (p *Pool) run(ctx context.Context, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("job panicked", zap.Any("panic", rec))
		}
	}()
	job(ctx)
}

// Drain runs every queued job inline with ctx and returns how many ran. It is
// meant for one-shot commands that never call Run.
func (p *Pool) Drain(ctx context.Context) int {
	ran := 0
	for {
		select {
		case job := <-p.queue:
			p.run(ctx, job)
			ran++
		default:
			return ran
		}
	}
}
