package lazywriter

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/swmr/storeprov"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
	"github.com/zeebo/xxh3"
)

var (
	LazyWriteMetric = kmetrics.CreateKmetric(context.Background(), "swmr_lazy_write", "lazy write attempts", []string{"kind", "result"}).CountOnly()
)

type Config struct {
	InitialDelayMs         int
	PeriodMs               int
	MaxConsecutiveFailures int
}

// TickResult tells the owner what a tick did and whether to schedule another.
type TickResult struct {
	Attempted bool
	Err       error
	Rearm     bool
}

// Status is the operator view of one writer.
type Status struct {
	Key               string `json:"key"`
	RetryCount        int    `json:"retry_count"`
	PermanentlyFailed bool   `json:"permanently_failed"`
	Attempts          int64  `json:"attempts"`
	LastError         string `json:"last_error,omitempty"`
	LastPersistedMs   int64  `json:"last_persisted_ms"`
	Dirty             bool   `json:"dirty"`
}

// LazyStateWriter persists a snapshot only when it changed since the last successful save.
// After MaxConsecutiveFailures failed saves it stops until Reset. It is not goroutine-safe:
// the owner (the grain actor) calls it from its run loop.
type LazyStateWriter struct {
	kind   string
	key    string
	store  storeprov.StateStore
	config Config

	persistedFingerprint uint64
	hasPersisted         bool
	lastSeenFingerprint  uint64

	retryCount        int
	permanentlyFailed bool
	attempts          int64
	lastError         string
	lastPersistedMs   int64
}

func NewLazyStateWriter(kind, key string, store storeprov.StateStore, config Config) *LazyStateWriter {
	return &LazyStateWriter{
		kind:   kind,
		key:    key,
		store:  store,
		config: config,
	}
}

func Fingerprint(data []byte) uint64 {
	return xxh3.Hash(data)
}

// MarkPersisted records data as already durable (e.g. just loaded from the store).
func (w *LazyStateWriter) MarkPersisted(data []byte) {
	w.persistedFingerprint = Fingerprint(data)
	w.lastSeenFingerprint = w.persistedFingerprint
	w.hasPersisted = true
}

// OnTick saves data when its fingerprint differs from the last persisted one.
func (w *LazyStateWriter) OnTick(ctx context.Context, data []byte) TickResult {
	if w.permanentlyFailed {
		return TickResult{}
	}
	fp := Fingerprint(data)
	w.lastSeenFingerprint = fp
	if w.hasPersisted && fp == w.persistedFingerprint {
		return TickResult{Rearm: true}
	}

	w.attempts++
	err := w.store.Save(ctx, w.key, data)
	if err == nil {
		w.persistedFingerprint = fp
		w.hasPersisted = true
		w.retryCount = 0
		w.lastError = ""
		w.lastPersistedMs = kcommon.GetWallTimeMs()
		LazyWriteMetric.GetTimeSequence(ctx, w.kind, "ok").Add(1)
		klogging.Debug(ctx).With("key", w.key).With("bytes", len(data)).Log("LazyWriteSaved", "")
		return TickResult{Attempted: true, Rearm: true}
	}

	w.retryCount++
	w.lastError = err.Error()
	LazyWriteMetric.GetTimeSequence(ctx, w.kind, "error").Add(1)
	if w.retryCount >= w.config.MaxConsecutiveFailures {
		w.permanentlyFailed = true
		LazyWriteMetric.GetTimeSequence(ctx, w.kind, "gave_up").Add(1)
		klogging.Error(ctx).With("key", w.key).With("retryCount", w.retryCount).WithError(err).
			Log("LazyWritePermanentFailure", "giving up on persistence until reset")
		return TickResult{Attempted: true, Err: err}
	}
	klogging.Warning(ctx).With("key", w.key).With("retryCount", w.retryCount).WithError(err).
		Log("LazyWriteFailed", "will retry on next tick")
	return TickResult{Attempted: true, Err: err, Rearm: true}
}

// Reset clears the failure state so the owner can re-arm ticking.
func (w *LazyStateWriter) Reset() {
	w.retryCount = 0
	w.permanentlyFailed = false
	w.lastError = ""
}

func (w *LazyStateWriter) PermanentlyFailed() bool {
	return w.permanentlyFailed
}

func (w *LazyStateWriter) Status() Status {
	return Status{
		Key:               w.key,
		RetryCount:        w.retryCount,
		PermanentlyFailed: w.permanentlyFailed,
		Attempts:          w.attempts,
		LastError:         w.lastError,
		LastPersistedMs:   w.lastPersistedMs,
		Dirty:             !w.hasPersisted || w.lastSeenFingerprint != w.persistedFingerprint,
	}
}
