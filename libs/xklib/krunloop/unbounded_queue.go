package krunloop

import (
	"context"
	"sync"
)

// UnboundedQueue never rejects while open. The buffer grows as needed.
type UnboundedQueue[T CriticalResource] struct {
	mu     sync.Mutex
	buffer []IEvent[T]
	closed bool
	notify chan struct{} // cap 1, signaled on enqueue
	done   chan struct{}
}

func NewUnboundedQueue[T CriticalResource]() *UnboundedQueue[T] {
	return &UnboundedQueue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends item; after close it drops the event and returns false.
func (q *UnboundedQueue[T]) Enqueue(item IEvent[T]) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.buffer = append(q.buffer, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks until an event is available. It returns false once ctx is done or the queue is closed.
func (q *UnboundedQueue[T]) Dequeue(ctx context.Context) (IEvent[T], bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.buffer) > 0 {
			item := q.buffer[0]
			q.buffer[0] = nil
			q.buffer = q.buffer[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()
		select {
		case <-q.notify:
		case <-q.done:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// GetSize counts events enqueued and not yet dequeued.
func (q *UnboundedQueue[T]) GetSize() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.buffer))
}

func (q *UnboundedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.buffer = nil
	close(q.done)
}

func (q *UnboundedQueue[T]) enqueue(event IEvent[T]) error {
	if !q.Enqueue(event) {
		return errRunLoopStopped("unbounded")
	}
	return nil
}

func (q *UnboundedQueue[T]) enqueueWait(ctx context.Context, event IEvent[T]) error {
	return q.enqueue(event)
}

func (q *UnboundedQueue[T]) receive(ctx context.Context) (IEvent[T], bool) {
	return q.Dequeue(ctx)
}

func (q *UnboundedQueue[T]) size() int64 {
	return q.GetSize()
}

func (q *UnboundedQueue[T]) close() {
	q.Close()
}
