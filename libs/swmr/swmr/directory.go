package swmr

import (
	"context"
)

// ReplicaHandle is how the Writer, the replicator and Readers reach one read replica.
type ReplicaHandle[S any] interface {
	// SetState delivers snap and waits until the replica processed it.
	SetState(ctx context.Context, snap Snapshot[S]) error
	// PushState enqueues snap without waiting; a full mailbox fails fast.
	PushState(ctx context.Context, snap Snapshot[S]) error
	Query(ctx context.Context, query Query[S]) (any, error)
}

type ReplicaDirectory[S any] interface {
	Replica(id ReplicaId) ReplicaHandle[S]
}

// localDirectory resolves replicas through the kind's in-process registry.
type localDirectory[G Grain[S], S State[S]] struct {
	kind *GrainKind[G, S]
}

func (d *localDirectory[G, S]) Replica(id ReplicaId) ReplicaHandle[S] {
	return &localReplicaHandle[G, S]{kind: d.kind, id: id}
}

type localReplicaHandle[G Grain[S], S State[S]] struct {
	kind *GrainKind[G, S]
	id   ReplicaId
}

func (h *localReplicaHandle[G, S]) SetState(ctx context.Context, snap Snapshot[S]) error {
	loop, err := h.kind.replicas.Get(h.id)
	if err != nil {
		return err
	}
	ch := newResponseChan[bool]()
	_, err = call(ctx, h.kind.callTimeout, loop, &replicaSetStateEvent[G, S]{snapshot: snap, resp: ch}, ch)
	return err
}

func (h *localReplicaHandle[G, S]) PushState(ctx context.Context, snap Snapshot[S]) error {
	loop, err := h.kind.replicas.Get(h.id)
	if err != nil {
		return err
	}
	return loop.PostEvent(&replicaSetStateEvent[G, S]{snapshot: snap})
}

func (h *localReplicaHandle[G, S]) Query(ctx context.Context, query Query[S]) (any, error) {
	loop, err := h.kind.replicas.Get(h.id)
	if err != nil {
		return nil, err
	}
	ch := newResponseChan[any]()
	return call(ctx, h.kind.callTimeout, loop, &replicaQueryEvent[G, S]{query: query, resp: ch}, ch)
}
