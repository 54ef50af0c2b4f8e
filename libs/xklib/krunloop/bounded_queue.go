package krunloop

import (
	"context"
	"sync/atomic"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// boundedQueue is a fixed-capacity mailbox. The channel is never closed so late
// senders cannot panic; RunLoop rejects them through its stopped flag instead.
type boundedQueue[T CriticalResource] struct {
	ch       chan IEvent[T]
	capacity int
	closed   atomic.Bool
}

func newBoundedQueue[T CriticalResource](capacity int) *boundedQueue[T] {
	return &boundedQueue[T]{
		ch:       make(chan IEvent[T], capacity),
		capacity: capacity,
	}
}

func (q *boundedQueue[T]) enqueue(event IEvent[T]) error {
	select {
	case q.ch <- event:
		return nil
	default:
		return errMailboxFull(q.capacity)
	}
}

func (q *boundedQueue[T]) enqueueWait(ctx context.Context, event IEvent[T]) error {
	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return kerror.Wrap(ctx.Err(), "MailboxWaitTimeout", "gave up waiting for mailbox space", false).WithErrorCode(kerror.EC_TIMEOUT)
	}
}

func (q *boundedQueue[T]) receive(ctx context.Context) (IEvent[T], bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case event := <-q.ch:
		return event, true
	}
}

func (q *boundedQueue[T]) size() int64 {
	return int64(len(q.ch))
}

func (q *boundedQueue[T]) close() {
	q.closed.Store(true)
}
