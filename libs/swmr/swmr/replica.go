package swmr

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

// replicaActor caches a private snapshot of one grain on one node and answers queries from it.
type replicaActor[G Grain[S], S State[S]] struct {
	kind     *GrainKind[G, S]
	id       ReplicaId
	snapshot *Snapshot[S] // nil until activated
}

func (r *replicaActor[G, S]) IsResource() {}

func (r *replicaActor[G, S]) ensureActive(ctx context.Context) error {
	if r.snapshot != nil {
		return nil
	}
	snap, err := r.kind.grainSnapshot(ctx, r.id.GrainId)
	if err != nil {
		ReplicaActivationMetric.GetTimeSequence(ctx, r.kind.name, "error").Add(1)
		klogging.Warning(ctx).With("replicaId", r.id.String()).WithError(err).Log("ReplicaActivationFailed", "will retry on next message")
		return kerror.Wrap(err, "ReplicaActivationFailed", "failed to fetch snapshot from grain", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("replicaId", r.id.String())
	}
	r.snapshot = &snap
	ReplicaActivationMetric.GetTimeSequence(ctx, r.kind.name, "ok").Add(1)
	klogging.Verbose(ctx).With("replicaId", r.id.String()).With("version", snap.Version).Log("ReplicaActivated", "")
	return nil
}

// apply replaces the cached snapshot unless it is already at or past snap's version.
func (r *replicaActor[G, S]) apply(ctx context.Context, snap Snapshot[S]) bool {
	if r.snapshot != nil && snap.Version <= r.snapshot.Version {
		if snap.Version < r.snapshot.Version {
			StaleSnapshotMetric.GetTimeSequence(ctx, r.kind.name).Add(1)
			klogging.Debug(ctx).With("replicaId", r.id.String()).With("cached", r.snapshot.Version).
				With("incoming", snap.Version).Log("StaleSnapshotIgnored", "")
		}
		return false
	}
	r.snapshot = &Snapshot[S]{GrainId: snap.GrainId, Version: snap.Version, State: snap.State.Clone()}
	return true
}

type replicaQueryEvent[G Grain[S], S State[S]] struct {
	query Query[S]
	resp  chan response[any]
}

func (e *replicaQueryEvent[G, S]) GetName() string { return "Query" }

func (e *replicaQueryEvent[G, S]) Process(ctx context.Context, r *replicaActor[G, S]) {
	if err := r.ensureActive(ctx); err != nil {
		e.resp <- response[any]{err: err}
		return
	}
	value, err := runQuery(ctx, e.query, r.snapshot.State)
	e.resp <- response[any]{value: value, err: err}
}

func runQuery[S any](ctx context.Context, query Query[S], state S) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = kerror.Create("QueryPanic", "query panicked").WithErrorCode(kerror.EC_INTERNAL_ERROR).With("panic", p)
		}
	}()
	return query(ctx, state)
}

// replicaSetStateEvent delivers a snapshot. resp is nil for fire-and-forget pushes.
type replicaSetStateEvent[G Grain[S], S State[S]] struct {
	snapshot Snapshot[S]
	resp     chan response[bool]
}

func (e *replicaSetStateEvent[G, S]) GetName() string { return "SetState" }

func (e *replicaSetStateEvent[G, S]) Process(ctx context.Context, r *replicaActor[G, S]) {
	if err := r.ensureActive(ctx); err != nil {
		if e.resp != nil {
			e.resp <- response[bool]{err: err}
		}
		return
	}
	applied := r.apply(ctx, e.snapshot)
	if e.resp != nil {
		e.resp <- response[bool]{value: applied}
	}
}

type replicaVersionEvent[G Grain[S], S State[S]] struct {
	resp chan response[int64]
}

func (e *replicaVersionEvent[G, S]) GetName() string { return "Version" }

func (e *replicaVersionEvent[G, S]) Process(ctx context.Context, r *replicaActor[G, S]) {
	if r.snapshot == nil {
		e.resp <- response[int64]{value: -1}
		return
	}
	e.resp <- response[int64]{value: r.snapshot.Version}
}
