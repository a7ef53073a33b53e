// Package dedupe tracks pending recompute jobs so identical work is queued once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records the keys of jobs that are waiting in the queue.
type Deduper interface {
	// SeenAndRecord atomically checks whether key is pending and records it if not.
	// Returns true if key was already pending.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key. Workers call it when they pick a job up, so a
	// change that lands while the job runs queues a fresh one.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps pending keys in insertion order. When bounded and
// full, the oldest key is forgotten; the worst case is a duplicate job.
type inMemoryDeduper struct {
	mu      sync.Mutex
	pending map[string]*list.Element
	order   *list.List
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.pending = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.pending) >= d.maxSize {
		d.evictOldest()
	}
	d.pending[key] = d.order.PushBack(key)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.pending[key]; ok {
		d.order.Remove(el)
		delete(d.pending, key)
		d.size.Add(-1)
	}
}

// evictOldest drops the front of the order list. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.pending, front.Value.(string))
	d.size.Add(-1)
}

// Size returns the number of pending keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
