package swmr

import (
	"context"
	"sync"

	"github.com/xinkaiwang/swmr/libs/swmr/lazywriter"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
)

var (
	WriteMetric             = kmetrics.CreateKmetric(context.Background(), "swmr_write", "writer invocations", []string{"kind", "result"}).CountOnly()
	ReadMetric              = kmetrics.CreateKmetric(context.Background(), "swmr_read", "reader invocations", []string{"kind", "result"}).CountOnly()
	ReplicaPushMetric       = kmetrics.CreateKmetric(context.Background(), "swmr_replica_push", "snapshot pushes to non-session replicas", []string{"kind", "result"}).CountOnly()
	ReplicaActivationMetric = kmetrics.CreateKmetric(context.Background(), "swmr_replica_activation", "read replica activations", []string{"kind", "result"}).CountOnly()
	StaleSnapshotMetric     = kmetrics.CreateKmetric(context.Background(), "swmr_stale_snapshot", "snapshots ignored by replicas because a newer one was cached", []string{"kind"}).CountOnly()
)

var (
	LazyRetryGauge  = kmetrics.NewGaugeGroup("swmr_lazy_write_retry_count", "consecutive failed saves per grain, only grains with failures", "kind", "grain")
	LazyFailedGauge = kmetrics.NewGaugeGroup("swmr_lazy_write_permanently_failed", "1 while a grain's lazy writer has given up", "kind", "grain")

	lazyHealth = &lazyHealthTracker{unhealthy: make(map[lazyHealthKey]lazywriter.Status)}
)

type lazyHealthKey struct {
	kind  string
	grain GrainId
}

// lazyHealthTracker feeds the lazy write gauges. Healthy grains are not listed.
type lazyHealthTracker struct {
	mu        sync.Mutex
	unhealthy map[lazyHealthKey]lazywriter.Status
}

func (t *lazyHealthTracker) report(kind string, grain GrainId, status lazywriter.Status) {
	key := lazyHealthKey{kind: kind, grain: grain}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, known := t.unhealthy[key]
	healthy := status.RetryCount == 0 && !status.PermanentlyFailed
	if healthy && !known {
		return
	}
	if healthy {
		delete(t.unhealthy, key)
	} else {
		t.unhealthy[key] = status
	}
	t.publish()
}

func (t *lazyHealthTracker) forgetKind(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.unhealthy {
		if key.kind == kind {
			delete(t.unhealthy, key)
		}
	}
	t.publish()
}

func (t *lazyHealthTracker) publish() {
	retries := make([]*kmetrics.GaugeTimeSequence, 0, len(t.unhealthy))
	failed := make([]*kmetrics.GaugeTimeSequence, 0, len(t.unhealthy))
	for key, status := range t.unhealthy {
		retries = append(retries, kmetrics.NewGaugeTimeSequence(LazyRetryGauge, int64(status.RetryCount), key.kind, string(key.grain)))
		var flag int64
		if status.PermanentlyFailed {
			flag = 1
		}
		failed = append(failed, kmetrics.NewGaugeTimeSequence(LazyFailedGauge, flag, key.kind, string(key.grain)))
	}
	LazyRetryGauge.UpdateValue(retries)
	LazyFailedGauge.UpdateValue(failed)
}
