package krunloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

type counterResource struct {
	value int
	seen  []int
}

func (r *counterResource) IsResource() {}

type addEvent struct {
	delta int
	done  chan int
}

func (e *addEvent) GetName() string { return "AddEvent" }

func (e *addEvent) Process(ctx context.Context, r *counterResource) {
	r.value += e.delta
	r.seen = append(r.seen, e.delta)
	if e.done != nil {
		e.done <- r.value
	}
}

type blockEvent struct {
	release chan struct{}
	started chan struct{}
}

func (e *blockEvent) GetName() string { return "BlockEvent" }

func (e *blockEvent) Process(ctx context.Context, r *counterResource) {
	close(e.started)
	<-e.release
}

type panicEvent struct{}

func (e *panicEvent) GetName() string { return "PanicEvent" }

func (e *panicEvent) Process(ctx context.Context, r *counterResource) {
	panic(kerror.Create("Boom", "event failed"))
}

func TestRunLoopProcessesInOrder(t *testing.T) {
	for _, size := range []int{0, 16} {
		ctx, cancel := context.WithCancel(context.Background())
		res := &counterResource{}
		rl := NewRunLoop(ctx, res, "test", WithMailboxSize(size))
		go rl.Run(ctx)

		for i := 1; i <= 5; i++ {
			assert.Nil(t, rl.PostEvent(&addEvent{delta: i}))
		}
		done := make(chan int, 1)
		assert.Nil(t, rl.PostEvent(&addEvent{delta: 0, done: done}))
		select {
		case v := <-done:
			assert.Equal(t, 15, v)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
		assert.Equal(t, []int{1, 2, 3, 4, 5, 0}, res.seen)
		rl.StopAndWaitForExit()
		cancel()
	}
}

func TestRunLoopBoundedMailboxRejectsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test_bounded", WithMailboxSize(2))
	go rl.Run(ctx)

	block := &blockEvent{release: make(chan struct{}), started: make(chan struct{})}
	assert.Nil(t, rl.PostEvent(block))
	<-block.started

	assert.Nil(t, rl.PostEvent(&addEvent{delta: 1}))
	assert.Nil(t, rl.PostEvent(&addEvent{delta: 1}))
	err := rl.PostEvent(&addEvent{delta: 1})
	assert.True(t, kerror.IsType(err, "MailboxFull"))
	assert.True(t, kerror.Retryable(err))
	assert.Equal(t, int64(2), rl.QueueSize())

	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer waitCancel()
	err = rl.PostEventWait(waitCtx, &addEvent{delta: 1})
	assert.True(t, kerror.IsType(err, "MailboxWaitTimeout"))

	close(block.release)
	rl.StopAndWaitForExit()
}

func TestRunLoopSurvivesPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test_panic", WithMailboxSize(4))
	go rl.Run(ctx)

	assert.Nil(t, rl.PostEvent(&panicEvent{}))
	done := make(chan int, 1)
	assert.Nil(t, rl.PostEvent(&addEvent{delta: 7, done: done}))
	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	rl.StopAndWaitForExit()
}

func TestRunLoopRejectsAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test_stop", WithMailboxSize(4))
	go rl.Run(ctx)
	var processed atomic.Int32
	done := make(chan int, 1)
	assert.Nil(t, rl.PostEvent(&addEvent{delta: 1, done: done}))
	<-done
	processed.Add(1)

	rl.StopAndWaitForExit()
	assert.True(t, rl.IsStopped())
	err := rl.PostEvent(&addEvent{delta: 1})
	assert.True(t, kerror.IsType(err, "RunLoopStopped"))
	assert.Equal(t, int32(1), processed.Load())
}

func TestRunLoopUnboundedQueueSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test_unbounded", WithMailboxSize(0))
	go rl.Run(ctx)

	block := &blockEvent{release: make(chan struct{}), started: make(chan struct{})}
	assert.Nil(t, rl.PostEvent(block))
	<-block.started
	for i := 0; i < 3; i++ {
		assert.Nil(t, rl.PostEvent(&addEvent{delta: 1}))
	}
	assert.Equal(t, int64(3), rl.QueueSize())

	done := make(chan int, 1)
	assert.Nil(t, rl.PostEvent(&addEvent{delta: 0, done: done}))
	close(block.release)
	select {
	case v := <-done:
		assert.Equal(t, 3, v)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	assert.Equal(t, int64(0), rl.QueueSize())
	rl.StopAndWaitForExit()
}
