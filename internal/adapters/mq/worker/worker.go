// Package worker runs queued recompute jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
	"github.com/okian/panelscore/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	defaultJobTimeout       = 60 * time.Second
	workerShutdownTimeout   = 5 * time.Second
)

// Runner executes one recompute job.
type Runner interface {
	Run(ctx context.Context, j model.Job) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Releaser forgets a pending job's coalescing key so an identical job
// submitted while this one runs is queued again.
type Releaser interface {
	Unrecord(ctx context.Context, key string)
}

// Counters are shared by the workers of one pool.
type Counters struct {
	processed atomic.Int64
	failed    atomic.Int64
}

// Processed returns the number of finished jobs.
func (c *Counters) Processed() int64 { return c.processed.Load() }

// Failed returns the number of jobs that finished with an error.
func (c *Counters) Failed() int64 { return c.failed.Load() }

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	runner     Runner
	releaser   Releaser
	name       string
	jobTimeout time.Duration
	counters   *Counters

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from queue and running jobs with runner.
func NewInMemoryWorker(queue Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		runner:     runner,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		counters:   &Counters{},
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			_ = w.process(ctx, j)
		}
	}
}

// Shutdown signals the worker and waits for it to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.signal()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) signal() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// process runs one job. Errors are logged and counted here; nothing is retried.
func (w *InMemoryWorker) process(ctx context.Context, j model.Job) (err error) { //nolint:gocritic // hugeParam: jobs travel by value
	if w.releaser != nil {
		w.releaser.Unrecord(ctx, j.Key())
	}

	kind := string(j.Kind)
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}
		w.counters.processed.Add(1)
		metrics.RecordJobProcessed(kind, float64(time.Since(start).Milliseconds()))
		if err == nil {
			w.logger.Debug(ctx, "job done",
				logger.String("job_id", j.ID), logger.String("kind", kind),
				logger.Duration("took", time.Since(start)))
			return
		}
		w.counters.failed.Add(1)
		metrics.RecordJobFailed(kind)
		fields := []logger.Field{
			logger.String("job_id", j.ID), logger.String("kind", kind),
			logger.Duration("took", time.Since(start)), logger.Error(err),
		}
		if errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn(ctx, "job timed out", fields...)
			return
		}
		w.logger.Error(ctx, "job failed", fields...)
	}()

	return w.runner.Run(jobCtx, j)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters

	logger logger.Logger
}

// NewPool creates workerCount workers. Options apply to every worker; names
// are assigned by the pool.
func NewPool(workerCount int, queue Queue, runner Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		counters: &Counters{},
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, runner, append(opts, WithName("worker-"+strconv.Itoa(i)))...)
		w.counters = pool.counters
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Counters exposes the pool-wide job counters.
func (p *Pool) Counters() *Counters { return p.counters }

// Stop signals every worker to exit after its current job. Pending jobs are abandoned.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
		_ = w.Shutdown(ctx)
		cancel()
	}
}

// Shutdown closes the queue and lets the workers drain it. Workers still busy
// when ctx expires are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			timedOut++
			w.signal()
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not drain: %w", timedOut, ctx.Err())
	}
	p.logger.Info(ctx, "worker pool drained",
		logger.Int64("processed", p.counters.Processed()), logger.Int64("failed", p.counters.Failed()))
	return nil
}
