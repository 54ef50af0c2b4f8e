package swmr

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

type counterState struct {
	Value int      `json:"value"`
	Tags  []string `json:"tags,omitempty"`
}

func (s *counterState) Clone() *counterState {
	return &counterState{Value: s.Value, Tags: append([]string(nil), s.Tags...)}
}

type counterGrain struct {
	state *counterState
}

func newCounterGrain(id GrainId) *counterGrain {
	return &counterGrain{state: &counterState{}}
}

func (g *counterGrain) GetState() *counterState  { return g.state }
func (g *counterGrain) SetState(s *counterState) { g.state = s }

func increment(delta int) Mutation[*counterGrain] {
	return func(ctx context.Context, g *counterGrain) (any, error) {
		g.state.Value += delta
		return g.state.Value, nil
	}
}

func readValue(ctx context.Context, s *counterState) (any, error) {
	return s.Value, nil
}

type counterKind = GrainKind[*counterGrain, *counterState]

func testKindConfig() swmrconfig.KindConfig {
	cfg := swmrconfig.DefaultKindConfig("counter")
	cfg.CallTimeoutMs = 1000
	cfg.ReaderPoolSize = 4
	return cfg
}

func buildKind(t *testing.T, builder *GrainKindBuilder[*counterGrain, *counterState]) *counterKind {
	kind, err := builder.Build(context.Background())
	assert.Nil(t, err)
	t.Cleanup(func() { kind.Stop(context.Background()) })
	return kind
}

func otherNode(kind *counterKind, sessionId string) string {
	sessionNode := kind.SessionNode(sessionId)
	for _, node := range kind.readerTopology.Nodes() {
		if node != sessionNode {
			return node
		}
	}
	return ""
}

// faultyDirectory injects delivery failures per node.
type faultyDirectory struct {
	inner ReplicaDirectory[*counterState]

	mu            sync.Mutex
	failSetState  map[string]int // remaining failures, -1 fails forever
	failPush      map[string]bool
	setStateCalls map[string]int

	beforeSetState func() // optional
}

func newFaultyDirectory() *faultyDirectory {
	return &faultyDirectory{
		failSetState:  map[string]int{},
		failPush:      map[string]bool{},
		setStateCalls: map[string]int{},
	}
}

func (d *faultyDirectory) decorate(inner ReplicaDirectory[*counterState]) ReplicaDirectory[*counterState] {
	d.inner = inner
	return d
}

func (d *faultyDirectory) Replica(id ReplicaId) ReplicaHandle[*counterState] {
	return &faultyHandle{dir: d, id: id, inner: d.inner.Replica(id)}
}

func (d *faultyDirectory) SetStateCalls(node string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setStateCalls[node]
}

type faultyHandle struct {
	dir   *faultyDirectory
	id    ReplicaId
	inner ReplicaHandle[*counterState]
}

func (h *faultyHandle) SetState(ctx context.Context, snap Snapshot[*counterState]) error {
	h.dir.mu.Lock()
	h.dir.setStateCalls[h.id.Node]++
	remaining := h.dir.failSetState[h.id.Node]
	if remaining > 0 {
		h.dir.failSetState[h.id.Node] = remaining - 1
	}
	hook := h.dir.beforeSetState
	h.dir.mu.Unlock()
	if hook != nil {
		hook()
	}
	if remaining != 0 {
		return kerror.Create("InjectedFailure", "replica unreachable").WithErrorCode(kerror.EC_UNAVAILABLE)
	}
	return h.inner.SetState(ctx, snap)
}

func (h *faultyHandle) PushState(ctx context.Context, snap Snapshot[*counterState]) error {
	h.dir.mu.Lock()
	fail := h.dir.failPush[h.id.Node]
	h.dir.mu.Unlock()
	if fail {
		return kerror.Create("InjectedFailure", "mailbox full").WithErrorCode(kerror.EC_RETRYABLE)
	}
	return h.inner.PushState(ctx, snap)
}

func (h *faultyHandle) Query(ctx context.Context, query Query[*counterState]) (any, error) {
	return h.inner.Query(ctx, query)
}

// recordingLogger keeps every entry so tests can inspect structured fields.
type recordingLogger struct {
	mu      sync.Mutex
	entries []*klogging.LogEntry
}

func (l *recordingLogger) Log(entry *klogging.LogEntry, shouldLog bool) {
	if !shouldLog {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *recordingLogger) Level() klogging.Level {
	return klogging.VerboseLevel
}

// field returns the value of key on the first entry logged with event.
func (l *recordingLogger) field(event, key string) (interface{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.LogType != event {
			continue
		}
		for _, kv := range entry.Details {
			if kv.K == key {
				return kv.V, true
			}
		}
	}
	return nil, false
}
