// Package queue holds recompute jobs between the mutation that triggers them
// and the workers that run them.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It never blocks; a full queue returns ErrFull.
	Enqueue(ctx context.Context, j model.Job) error

	// Dequeue returns the channel workers receive jobs from. The channel is
	// closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Job

	// Len returns the number of pending jobs.
	Len(ctx context.Context) int

	// Capacity returns the maximum number of pending jobs.
	Capacity() int

	// Close stops accepting jobs. Pending jobs stay readable.
	Close() error

	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	jobs     chan model.Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan model.Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0, q.capacity)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return fmt.Errorf("enqueue %s: %w", j.Kind, err)
	}

	select {
	case q.jobs <- j:
		metrics.RecordJobEnqueued(string(j.Kind))
		metrics.UpdateQueueSize(len(q.jobs), q.capacity)
		return nil
	default:
		metrics.RecordQueueRejected("full")
		return fmt.Errorf("enqueue %s: %w", j.Kind, ErrFull)
	}
}

// Dequeue returns the job channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Job {
	return q.jobs
}

// Len returns the current number of queued jobs and refreshes the size gauge.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size, q.capacity)
	return size
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops the queue. Calling it twice is harmless.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
