package kcommon

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

// FakeTimeProvider implements TimeProvider with virtual time. Scheduled callbacks only fire
// from VirtualTimeForward, in deadline order, on the caller's goroutine.
type FakeTimeProvider struct {
	mu        sync.Mutex
	wallTime  int64
	monoTime  int64
	taskQueue *TaskQueue
	seq       int64

	// SettleMs is the real time given to other goroutines (runloops) after each fired task.
	SettleMs int
}

func NewFakeTimeProvider(currentTime int64) *FakeTimeProvider {
	return &FakeTimeProvider{
		wallTime:  currentTime,
		monoTime:  currentTime,
		taskQueue: NewTaskQueue(),
		SettleMs:  2,
	}
}

func (provider *FakeTimeProvider) GetWallTimeMs() int64 {
	return ReadWithLock(&provider.mu, func() int64 { return provider.wallTime })
}

func (provider *FakeTimeProvider) GetMonoTimeMs() int64 {
	return ReadWithLock(&provider.mu, func() int64 { return provider.monoTime })
}

func (provider *FakeTimeProvider) SleepMs(ctx context.Context, ms int) {
	provider.VirtualTimeForward(ctx, ms)
}

func (provider *FakeTimeProvider) ScheduleRun(delayMs int, fn func()) {
	RunWithLock(&provider.mu, func() {
		provider.seq++
		heap.Push(provider.taskQueue, &FakeTimerTask{
			TaskFunc:       fn,
			ScheduledForMs: provider.monoTime + int64(delayMs),
			Seq:            provider.seq,
		})
	})
}

// PendingTasks is for tests
func (provider *FakeTimeProvider) PendingTasks() int {
	return ReadWithLock(&provider.mu, func() int { return provider.taskQueue.Len() })
}

// VirtualTimeForward moves virtual time forward by forwardMs, firing every task that comes due
// (including tasks scheduled by fired tasks). Returns the number of tasks fired.
func (provider *FakeTimeProvider) VirtualTimeForward(ctx context.Context, forwardMs int) int {
	deadline := ReadWithLock(&provider.mu, func() int64 { return provider.monoTime + int64(forwardMs) })
	fired := 0
	for {
		var task *FakeTimerTask
		RunWithLock(&provider.mu, func() {
			top := provider.taskQueue.Peek()
			if top == nil || top.ScheduledForMs > deadline {
				return
			}
			heap.Pop(provider.taskQueue)
			if top.ScheduledForMs > provider.monoTime {
				provider.wallTime += top.ScheduledForMs - provider.monoTime
				provider.monoTime = top.ScheduledForMs
			}
			task = top
		})
		if task == nil {
			break
		}
		klogging.Verbose(ctx).With("scheduledForMs", task.ScheduledForMs).Log("FakeTimerFired", "")
		task.TaskFunc()
		fired++
		if provider.SettleMs > 0 {
			time.Sleep(time.Duration(provider.SettleMs) * time.Millisecond)
		}
	}
	RunWithLock(&provider.mu, func() {
		provider.wallTime += deadline - provider.monoTime
		provider.monoTime = deadline
	})
	return fired
}
