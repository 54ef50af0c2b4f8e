package swmr

import (
	"context"
	"fmt"

	"github.com/xinkaiwang/swmr/libs/swmr/lazywriter"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/krunloop"
)

// grainActor owns the authoritative grain instance and its snapshot version.
// The Writer applies mutations here; replicas bootstrap from here.
type grainActor[G Grain[S], S State[S]] struct {
	kind    *GrainKind[G, S]
	id      GrainId
	grain   G
	version int64

	activated bool
	lazy      *lazywriter.LazyStateWriter
	tickArmed bool
	loop      *krunloop.RunLoop[*grainActor[G, S]]
}

func (a *grainActor[G, S]) IsResource() {}

func (a *grainActor[G, S]) snapshot() Snapshot[S] {
	return Snapshot[S]{GrainId: a.id, Version: a.version, State: a.grain.GetState().Clone()}
}

// ensureActive creates the grain and restores persisted state. A failure leaves the actor
// inactive so the next event tries again.
func (a *grainActor[G, S]) ensureActive(ctx context.Context) error {
	if a.activated {
		return nil
	}
	grain := a.kind.newGrain(a.id)
	var loaded []byte
	if a.kind.store != nil {
		data, found, err := a.kind.store.Load(ctx, a.kind.storeKey(a.id))
		if err != nil {
			klogging.Warning(ctx).With("grainId", a.id).WithError(err).Log("GrainLoadFailed", "")
			return kerror.Wrap(err, "GrainActivationFailed", "failed to load persisted state", false).
				WithErrorCode(kerror.EC_UNAVAILABLE).With("grainId", a.id)
		}
		if found {
			state, err := a.kind.codec.Decode(data)
			if err != nil {
				return kerror.Wrap(err, "GrainActivationFailed", "persisted state is corrupt", false).
					WithErrorCode(kerror.EC_INTERNAL_ERROR).With("grainId", a.id)
			}
			grain.SetState(state)
			loaded = data
		}
	}
	a.grain = grain
	a.activated = true
	if a.kind.config.LazyWrite && a.kind.store != nil {
		a.lazy = lazywriter.NewLazyStateWriter(a.kind.name, a.kind.storeKey(a.id), a.kind.store, a.kind.lazyConfig())
		if loaded != nil {
			a.lazy.MarkPersisted(loaded)
		}
		a.armTick(a.kind.config.LazyWriteInitialDelayMs)
	}
	klogging.Debug(ctx).With("grainId", a.id).With("restored", loaded != nil).Log("GrainActivated", "")
	return nil
}

func (a *grainActor[G, S]) armTick(delayMs int) {
	if a.tickArmed || a.loop == nil {
		return
	}
	a.tickArmed = true
	a.scheduleTick(delayMs)
}

func (a *grainActor[G, S]) scheduleTick(delayMs int) {
	loop := a.loop
	kcommon.ScheduleRun(delayMs, func() {
		if loop.IsStopped() {
			return
		}
		if err := loop.PostEvent(&lazyTickEvent[G, S]{}); err != nil {
			// mailbox full, try again next period
			a.scheduleTick(a.kind.config.LazyWritePeriodMs)
		}
	})
}

func (a *grainActor[G, S]) persist(ctx context.Context) lazywriter.TickResult {
	data, err := a.kind.codec.Encode(a.grain.GetState())
	if err != nil {
		klogging.Error(ctx).With("grainId", a.id).WithError(err).Log("LazyWriteEncodeFailed", "")
		return lazywriter.TickResult{Err: err, Rearm: true}
	}
	res := a.lazy.OnTick(ctx, data)
	lazyHealth.report(a.kind.name, a.id, a.lazy.Status())
	return res
}

type mutateResult[S any] struct {
	result   any
	snapshot Snapshot[S]
}

// mutateEvent applies a mutation and returns the resulting snapshot.
type mutateEvent[G Grain[S], S State[S]] struct {
	mutation Mutation[G]
	resp     chan response[mutateResult[S]]
}

func (e *mutateEvent[G, S]) GetName() string { return "Mutate" }

func (e *mutateEvent[G, S]) Process(ctx context.Context, a *grainActor[G, S]) {
	if err := a.ensureActive(ctx); err != nil {
		e.resp <- response[mutateResult[S]]{err: err}
		return
	}
	result, err := runMutation(ctx, e.mutation, a.grain)
	if err != nil {
		e.resp <- response[mutateResult[S]]{err: err}
		return
	}
	a.version++
	e.resp <- response[mutateResult[S]]{value: mutateResult[S]{result: result, snapshot: a.snapshot()}}
}

func runMutation[G any](ctx context.Context, mutation Mutation[G], grain G) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kerror.Create("MutationPanic", fmt.Sprintf("mutation panicked: %v", r)).WithErrorCode(kerror.EC_INTERNAL_ERROR)
		}
	}()
	return mutation(ctx, grain)
}

type getSnapshotEvent[G Grain[S], S State[S]] struct {
	resp chan response[Snapshot[S]]
}

func (e *getSnapshotEvent[G, S]) GetName() string { return "GetSnapshot" }

func (e *getSnapshotEvent[G, S]) Process(ctx context.Context, a *grainActor[G, S]) {
	if err := a.ensureActive(ctx); err != nil {
		e.resp <- response[Snapshot[S]]{err: err}
		return
	}
	e.resp <- response[Snapshot[S]]{value: a.snapshot()}
}

type lazyTickEvent[G Grain[S], S State[S]] struct{}

func (e *lazyTickEvent[G, S]) GetName() string { return "LazyTick" }

func (e *lazyTickEvent[G, S]) Process(ctx context.Context, a *grainActor[G, S]) {
	a.tickArmed = false
	if !a.activated || a.lazy == nil {
		return
	}
	if res := a.persist(ctx); res.Rearm {
		a.armTick(a.kind.config.LazyWritePeriodMs)
	}
}

type lazyStatusEvent[G Grain[S], S State[S]] struct {
	resp chan response[lazywriter.Status]
}

func (e *lazyStatusEvent[G, S]) GetName() string { return "LazyStatus" }

func (e *lazyStatusEvent[G, S]) Process(ctx context.Context, a *grainActor[G, S]) {
	if err := a.ensureActive(ctx); err != nil {
		e.resp <- response[lazywriter.Status]{err: err}
		return
	}
	if a.lazy == nil {
		e.resp <- response[lazywriter.Status]{err: errLazyWriteDisabled(a.kind.name)}
		return
	}
	e.resp <- response[lazywriter.Status]{value: a.lazy.Status()}
}

// lazyResetEvent is the external reset after a permanent persistence failure.
type lazyResetEvent[G Grain[S], S State[S]] struct {
	resp chan response[lazywriter.Status]
}

func (e *lazyResetEvent[G, S]) GetName() string { return "LazyReset" }

func (e *lazyResetEvent[G, S]) Process(ctx context.Context, a *grainActor[G, S]) {
	if err := a.ensureActive(ctx); err != nil {
		e.resp <- response[lazywriter.Status]{err: err}
		return
	}
	if a.lazy == nil {
		e.resp <- response[lazywriter.Status]{err: errLazyWriteDisabled(a.kind.name)}
		return
	}
	a.lazy.Reset()
	lazyHealth.report(a.kind.name, a.id, a.lazy.Status())
	a.armTick(a.kind.config.LazyWriteInitialDelayMs)
	klogging.Info(ctx).With("grainId", a.id).Log("LazyWriterReset", "persistence re-armed")
	e.resp <- response[lazywriter.Status]{value: a.lazy.Status()}
}

// flushEvent persists pending changes once, used on shutdown.
type flushEvent[G Grain[S], S State[S]] struct {
	resp chan response[bool]
}

func (e *flushEvent[G, S]) GetName() string { return "Flush" }

func (e *flushEvent[G, S]) Process(ctx context.Context, a *grainActor[G, S]) {
	if !a.activated || a.lazy == nil || a.lazy.PermanentlyFailed() {
		e.resp <- response[bool]{value: false}
		return
	}
	res := a.persist(ctx)
	e.resp <- response[bool]{value: res.Attempted, err: res.Err}
}

func errLazyWriteDisabled(kind string) *kerror.Kerror {
	return kerror.Create("LazyWriteDisabled", "lazy write is not enabled for this kind").
		WithErrorCode(kerror.EC_NOT_FOUND).With("kind", kind).WithoutStack()
}
