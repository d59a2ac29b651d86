// Package queue provides the bounded in-memory queue buffering inbound
// sighting reports between the ingestion boundary and the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/pkg/metrics"
)

const defaultCapacity = 10000

// Report is the payload type flowing through the queue.
type Report = model.SightingReport

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a report. Returns false when the queue is full or
	// closed; callers surface this as backpressure.
	Enqueue(ctx context.Context, r Report) bool

	// Dequeue returns a channel receiving reports as they arrive. The
	// channel closes when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Report

	// Len returns the current number of queued reports.
	Len() int

	// Close stops accepting new reports.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	reports  chan Report
	capacity int

	mu     sync.RWMutex
	closed bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.reports = make(chan Report, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a report without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Report) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.reports <- r:
		metrics.UpdateQueueSize(len(q.reports))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// Dequeue returns the consumption channel.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Report {
	out := make(chan Report)
	go func() {
		defer close(out)
		for r := range q.reports {
			select {
			case out <- r:
				metrics.UpdateQueueSize(len(q.reports))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued reports.
func (q *InMemoryQueue) Len() int {
	return len(q.reports)
}

// Close stops accepting reports; queued reports remain consumable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.reports)
	q.closed = true
	return nil
}
