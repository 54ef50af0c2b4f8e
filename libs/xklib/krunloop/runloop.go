package krunloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
)

var (
	RunLoopElapsedMsMetric = kmetrics.CreateKmetric(context.Background(), "runloop_elapsed_ms", "time spent processing one event", []string{"name", "event"})
	RunLoopRejectedMetric  = kmetrics.CreateKmetric(context.Background(), "runloop_rejected", "events rejected by a full or stopped mailbox", []string{"name", "reason"}).CountOnly()
)

// CriticalResource is the state owned by a RunLoop. Only events touch it, one at a time.
type CriticalResource interface {
	IsResource()
}

// IEvent is processed on the RunLoop goroutine with exclusive access to the resource
type IEvent[T CriticalResource] interface {
	GetName() string
	Process(ctx context.Context, resource T)
}

type EventPoster[T CriticalResource] interface {
	PostEvent(event IEvent[T]) error
}

type mailbox[T CriticalResource] interface {
	enqueue(event IEvent[T]) error
	enqueueWait(ctx context.Context, event IEvent[T]) error
	receive(ctx context.Context) (IEvent[T], bool)
	size() int64
	close()
}

// RunLoop implements EventPoster.
// name is the metrics label (keep cardinality low: the kind of actor, not its id).
type RunLoop[T CriticalResource] struct {
	name     string
	resource T
	queue    mailbox[T]
	stopped  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	exited chan struct{}
}

type RunLoopOption func(*runLoopOptions)

type runLoopOptions struct {
	mailboxSize int
}

// WithMailboxSize bounds the mailbox. size <= 0 means unbounded.
func WithMailboxSize(size int) RunLoopOption {
	return func(opts *runLoopOptions) {
		opts.mailboxSize = size
	}
}

func NewRunLoop[T CriticalResource](ctx context.Context, resource T, name string, opts ...RunLoopOption) *RunLoop[T] {
	options := &runLoopOptions{}
	for _, opt := range opts {
		opt(options)
	}
	rl := &RunLoop[T]{
		name:     name,
		resource: resource,
		exited:   make(chan struct{}),
	}
	if options.mailboxSize > 0 {
		rl.queue = newBoundedQueue[T](options.mailboxSize)
	} else {
		rl.queue = NewUnboundedQueue[T]()
	}
	return rl
}

// PostEvent enqueues without blocking. A full bounded mailbox returns a retryable MailboxFull error.
func (rl *RunLoop[T]) PostEvent(event IEvent[T]) error {
	if rl.stopped.Load() {
		RunLoopRejectedMetric.GetTimeSequence(context.Background(), rl.name, "stopped").Add(1)
		return errRunLoopStopped(rl.name)
	}
	err := rl.queue.enqueue(event)
	if err != nil {
		RunLoopRejectedMetric.GetTimeSequence(context.Background(), rl.name, "full").Add(1)
	}
	return err
}

// PostEventWait blocks until the mailbox accepts the event, ctx is done, or the loop stops.
func (rl *RunLoop[T]) PostEventWait(ctx context.Context, event IEvent[T]) error {
	if rl.stopped.Load() {
		return errRunLoopStopped(rl.name)
	}
	return rl.queue.enqueueWait(ctx, event)
}

func (rl *RunLoop[T]) QueueSize() int64 {
	return rl.queue.size()
}

func (rl *RunLoop[T]) IsStopped() bool {
	return rl.stopped.Load()
}

// Run processes events until ctx is done or StopAndWaitForExit is called.
func (rl *RunLoop[T]) Run(ctx context.Context) {
	rl.mu.Lock()
	ctx, rl.cancel = context.WithCancel(ctx)
	rl.mu.Unlock()

	defer func() {
		rl.stopped.Store(true)
		rl.queue.close()
		close(rl.exited)
	}()

	for {
		event, ok := rl.queue.receive(ctx)
		if !ok {
			if ctx.Err() != nil {
				klogging.Debug(ctx).With("name", rl.name).Log("RunLoopCtxCanceled", "run loop stopped")
			}
			return
		}
		rl.processOne(ctx, event)
	}
}

func (rl *RunLoop[T]) processOne(ctx context.Context, event IEvent[T]) {
	start := kcommon.GetMonoTimeMs()
	eveName := event.GetName()
	defer func() {
		if r := recover(); r != nil {
			klogging.Error(ctx).With("name", rl.name).With("event", eveName).WithPanic(r).Log("RunLoopEventPanic", "event panicked, continuing")
		}
		RunLoopElapsedMsMetric.GetTimeSequence(ctx, rl.name, eveName).Add(kcommon.GetMonoTimeMs() - start)
	}()
	event.Process(ctx, rl.resource)
}

func (rl *RunLoop[T]) StopAndWaitForExit() {
	rl.stopped.Store(true)
	rl.mu.Lock()
	cancel := rl.cancel
	rl.mu.Unlock()
	if cancel == nil {
		// never started
		return
	}
	cancel()
	select {
	case <-rl.exited:
	case <-time.After(1000 * time.Millisecond):
		klogging.Warning(context.Background()).With("name", rl.name).Log("RunLoopStopTimeout", "run loop did not exit in time")
	}
}

func errRunLoopStopped(name string) *kerror.Kerror {
	return kerror.Create("RunLoopStopped", "run loop is stopped").WithErrorCode(kerror.EC_UNAVAILABLE).With("name", name).WithoutStack()
}

func errMailboxFull(capacity int) *kerror.Kerror {
	return kerror.Create("MailboxFull", "mailbox is full").WithErrorCode(kerror.EC_RETRYABLE).With("capacity", capacity).WithoutStack()
}
