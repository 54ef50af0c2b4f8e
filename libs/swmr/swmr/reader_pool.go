package swmr

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
)

var (
	ReaderPoolElapsedMsMetric = kmetrics.CreateKmetric(context.Background(), "reader_pool_elapsed_ms", "time a reader worker spent on one task", []string{"name", "task"})
)

type Task interface {
	GetName() string
	Execute(ctx context.Context)
}

// ReaderPool runs Reader dispatches on a fixed set of worker goroutines.
type ReaderPool struct {
	name    string
	workers []*readerWorker
	ch      chan Task
	done    chan struct{}
}

// NewReaderPool: name is used for logging/metrics purposes only
func NewReaderPool(ctx context.Context, workerCount int, name string) *ReaderPool {
	pool := &ReaderPool{
		name: name,
		ch:   make(chan Task, workerCount*16),
		done: make(chan struct{}),
	}
	pool.workers = make([]*readerWorker, workerCount)
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = newReaderWorker(ctx, pool)
	}
	return pool
}

// Submit blocks until a worker queue slot is free, ctx is done or the pool stops.
func (pool *ReaderPool) Submit(ctx context.Context, task Task) error {
	select {
	case <-pool.done:
		return kerror.Create("ReaderPoolStopped", "reader pool is stopped").WithErrorCode(kerror.EC_UNAVAILABLE).With("name", pool.name)
	default:
	}
	select {
	case pool.ch <- task:
		return nil
	case <-pool.done:
		return kerror.Create("ReaderPoolStopped", "reader pool is stopped").WithErrorCode(kerror.EC_UNAVAILABLE).With("name", pool.name)
	case <-ctx.Done():
		return kerror.Wrap(ctx.Err(), "ReaderPoolBusy", "no reader worker available before deadline", false).
			WithErrorCode(kerror.EC_TIMEOUT).With("name", pool.name)
	}
}

func (pool *ReaderPool) Size() int {
	return len(pool.workers)
}

func (pool *ReaderPool) StopAndWaitForExit() {
	select {
	case <-pool.done:
		return
	default:
		close(pool.done)
	}
	for _, w := range pool.workers {
		w.stop()
	}
	for _, w := range pool.workers {
		w.waitForExit()
	}
}

type readerWorker struct {
	parent  *ReaderPool
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newReaderWorker(ctx context.Context, parent *ReaderPool) *readerWorker {
	ctx, cancel := context.WithCancel(ctx)
	w := &readerWorker{
		parent:  parent,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

func (w *readerWorker) run(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.parent.ch:
			w.execute(ctx, task)
		}
	}
}

func (w *readerWorker) execute(ctx context.Context, task Task) {
	taskName := task.GetName()
	startTime := kcommon.GetMonoTimeMs()
	if ke := kcommon.TryCatchRun(ctx, func() { task.Execute(ctx) }); ke != nil {
		klogging.Error(ctx).With("pool", w.parent.name).With("task", taskName).WithError(ke).Log("ReaderTaskPanic", "")
	}
	ReaderPoolElapsedMsMetric.GetTimeSequence(ctx, w.parent.name, taskName).Add(kcommon.GetMonoTimeMs() - startTime)
}

func (w *readerWorker) stop() {
	w.cancel()
}

func (w *readerWorker) waitForExit() {
	<-w.stopped
}
