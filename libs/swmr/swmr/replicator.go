package swmr

import (
	"context"
	"sync"

	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

// replicator fans a snapshot out to the non-session replicas without blocking the Writer.
type replicator[S any] struct {
	ctx       context.Context
	kindName  string
	config    swmrconfig.KindConfig
	directory ReplicaDirectory[S]

	mu     sync.Mutex
	latest map[ReplicaId]int64 // newest version handed to each replica, at_least_once only; one entry per replica
}

func newReplicator[S any](ctx context.Context, config swmrconfig.KindConfig, directory ReplicaDirectory[S]) *replicator[S] {
	return &replicator[S]{
		ctx:       ctx,
		kindName:  config.Name,
		config:    config,
		directory: directory,
		latest:    make(map[ReplicaId]int64),
	}
}

func (r *replicator[S]) fanOut(ctx context.Context, snap Snapshot[S], nodes []string) {
	for _, node := range nodes {
		id := NewReplicaId(snap.GrainId, node)
		switch r.config.ReplicationPolicy {
		case swmrconfig.RP_AtLeastOnce:
			r.mu.Lock()
			if snap.Version > r.latest[id] {
				r.latest[id] = snap.Version
			}
			r.mu.Unlock()
			go r.deliver(id, snap, 1)
		default:
			if err := r.directory.Replica(id).PushState(ctx, snap); err != nil {
				ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "dropped").Add(1)
				klogging.Warning(ctx).With("replicaId", id.String()).With("version", snap.Version).WithError(err).
					Log("ReplicaPushDropped", "replica will catch up on a later push")
				continue
			}
			ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "ok").Add(1)
		}
	}
}

// deliver runs on its own goroutine. Each attempt waits for the replica to process the snapshot.
func (r *replicator[S]) deliver(id ReplicaId, snap Snapshot[S], attempt int) {
	ctx := klogging.EmbedKv(r.ctx, "replicaId", id.String())
	if r.superseded(id, snap.Version) {
		ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "superseded").Add(1)
		return
	}
	err := r.directory.Replica(id).SetState(ctx, snap)
	if err == nil {
		ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "ok").Add(1)
		return
	}
	if attempt >= r.config.RetryMaxAttempts {
		ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "gave_up").Add(1)
		klogging.Warning(ctx).With("version", snap.Version).With("attempts", attempt).WithError(err).
			Log("ReplicaPushGaveUp", "out of attempts")
		return
	}
	if r.superseded(id, snap.Version) {
		ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "superseded").Add(1)
		return
	}
	delayMs := r.backoffMs(ctx, attempt)
	ReplicaPushMetric.GetTimeSequence(ctx, r.kindName, "retried").Add(1)
	klogging.Debug(ctx).With("version", snap.Version).With("attempt", attempt).With("delayMs", delayMs).WithError(err).
		Log("ReplicaPushRetry", "")
	kcommon.ScheduleRun(delayMs, func() {
		go r.deliver(id, snap, attempt+1)
	})
}

func (r *replicator[S]) superseded(id ReplicaId, version int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest[id] > version
}

// backoffMs doubles from RetryBaseDelayMs per attempt, capped at RetryMaxDelayMs, with 10% jitter.
func (r *replicator[S]) backoffMs(ctx context.Context, attempt int) int {
	delay := r.config.RetryBaseDelayMs
	for i := 1; i < attempt && delay < r.config.RetryMaxDelayMs; i++ {
		delay *= 2
	}
	if delay > r.config.RetryMaxDelayMs {
		delay = r.config.RetryMaxDelayMs
	}
	return kcommon.RandomizeValueByRatio(ctx, delay, 0.1)
}
