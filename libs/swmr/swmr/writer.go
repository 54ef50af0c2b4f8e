package swmr

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/swmr/topology"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
)

// writerWaitFactor bounds Invoke's wait for the writer: the grain apply, the session push
// and queueing each get up to one CallTimeoutMs.
const writerWaitFactor = 3

// Writer is the only path that mutates a grain. It serializes mutations per grain.
type Writer[G Grain[S], S State[S]] struct {
	kind    *GrainKind[G, S]
	grainId GrainId
}

// Invoke applies mutation, then makes the result visible to sessionId's replica before returning.
// Other replicas are updated asynchronously.
func (w *Writer[G, S]) Invoke(ctx context.Context, sessionId string, mutation Mutation[G]) (result any, err error) {
	if err := validateGrainId(w.grainId); err != nil {
		return nil, err
	}
	ctx = klogging.EmbedKv(ctx, "grainId", string(w.grainId))
	err = kmetrics.InstrumentSummaryRunError(ctx, w.kind.name+".Write", func(ctx context.Context) error {
		loop, err := w.kind.writers.Get(w.grainId)
		if err != nil {
			return err
		}
		ch := newResponseChan[any]()
		result, err = call(ctx, w.kind.callTimeout*writerWaitFactor, loop, &writeEvent[G, S]{sessionId: sessionId, mutation: mutation, resp: ch}, ch)
		return err
	})
	WriteMetric.GetTimeSequence(ctx, w.kind.name, writeResultLabel(err)).Add(1)
	return result, err
}

func writeResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case kerror.IsType(err, "ReplicationUncertain"):
		return "replication_uncertain"
	default:
		return "error"
	}
}

// writerActor has its own topology instance built from the kind's configuration.
type writerActor[G Grain[S], S State[S]] struct {
	kind     *GrainKind[G, S]
	id       GrainId
	topology topology.Topology
}

func (w *writerActor[G, S]) IsResource() {}

type writeEvent[G Grain[S], S State[S]] struct {
	sessionId string
	mutation  Mutation[G]
	resp      chan response[any]
}

func (e *writeEvent[G, S]) GetName() string { return "Write" }

func (e *writeEvent[G, S]) Process(ctx context.Context, w *writerActor[G, S]) {
	result, err := w.write(ctx, e.sessionId, e.mutation)
	e.resp <- response[any]{value: result, err: err}
}

func (w *writerActor[G, S]) write(ctx context.Context, sessionId string, mutation Mutation[G]) (any, error) {
	ctx = klogging.EmbedKv(ctx, "grainId", string(w.id))
	// 1. apply on the authoritative grain
	applied, err := w.kind.applyMutation(ctx, w.id, mutation)
	if err != nil {
		return nil, err
	}
	snap := applied.snapshot

	// 2. route the session
	sessionNode := w.topology.GetNode(sessionId)

	// 3. everyone else, without waiting
	nodes := w.topology.Nodes()
	others := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if node != sessionNode {
			others = append(others, node)
		}
	}
	w.kind.replicator.fanOut(ctx, snap, others)

	// 4. the session replica, waiting
	sessionReplica := NewReplicaId(w.id, sessionNode)
	start := kcommon.GetMonoTimeMs()
	if err := w.kind.directory.Replica(sessionReplica).SetState(ctx, snap); err != nil {
		klogging.Warning(ctx).With("replicaId", sessionReplica.String()).With("version", snap.Version).
			With("elapsedMs", kcommon.GetMonoTimeMs()-start).WithError(err).
			Log("SessionReplicaUpdateFailed", "mutation applied but session replica not updated")
		return applied.result, kerror.Wrap(err, "ReplicationUncertain", "mutation applied, session replica update failed", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("replicaId", sessionReplica.String()).With("version", snap.Version)
	}
	klogging.Verbose(ctx).With("version", snap.Version).With("sessionNode", sessionNode).Log("WriteDone", "")
	return applied.result, nil
}
