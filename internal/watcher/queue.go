package watcher

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of save file paths.
// Put never blocks, so timer callbacks can enqueue freely; Pop suspends the
// consumer until a path arrives.
type Queue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	ready  chan struct{} // capacity 1; signalled when items or closed change
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Put appends path. Puts after Close are dropped.
func (q *Queue) Put(path string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, path)
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the oldest path, blocking until one is available,
// ctx is done, or the queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			path := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			more := len(q.items) > 0 || q.closed
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return path, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.signal()
			return "", ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued paths.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting paths. Queued paths can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
