package swmr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/swmr/topology"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

func TestReadYourWrites(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	for i := 1; i <= 20; i++ {
		session := fmt.Sprintf("session-%d", i)
		value, err := ResultAs[int](kind.Write(ctx, "g1", session, increment(1)))
		assert.Nil(t, err)
		assert.Equal(t, i, value)

		// the session's replica already has the write
		read, err := ResultAs[int](kind.Read(ctx, "g1", session, readValue))
		assert.Nil(t, err)
		assert.Equal(t, i, read)
	}
}

func TestEventualFanOut(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	_, err := kind.Write(ctx, "g1", "s1", increment(5))
	assert.Nil(t, err)

	for _, node := range topology.NodeLabels(10) {
		id := NewReplicaId("g1", node)
		assert.Eventually(t, func() bool {
			version, err := kind.ReplicaVersion(ctx, id)
			return err == nil && version == 1
		}, time.Second, 5*time.Millisecond, id.String())
	}
	// every session converges
	for i := 0; i < 10; i++ {
		value, err := ResultAs[int](kind.Read(ctx, "g1", fmt.Sprintf("other-%d", i), readValue))
		assert.Nil(t, err)
		assert.Equal(t, 5, value)
	}
	assert.Equal(t, KindStats{Grains: 1, Writers: 1, Replicas: 10}, kind.Stats())
}

func TestReadBeforeAnyWriteActivatesFromGrain(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	value, err := ResultAs[int](kind.Read(ctx, "fresh", "s1", readValue))
	assert.Nil(t, err)
	assert.Equal(t, 0, value)
	assert.Equal(t, 1, kind.Stats().Grains)
	assert.Equal(t, 0, kind.Stats().Writers)
}

func TestMutationErrorIsNotPropagated(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	boom := errors.New("boom")
	_, err := kind.Write(ctx, "g1", "s1", func(ctx context.Context, g *counterGrain) (any, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, kind.Stats().Replicas)

	// version did not move
	_, err = kind.Write(ctx, "g1", "s1", increment(1))
	assert.Nil(t, err)
	version, err := kind.ReplicaVersion(ctx, NewReplicaId("g1", kind.SessionNode("s1")))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), version)
}

func TestMutationPanicBecomesError(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	_, err := kind.Write(ctx, "g1", "s1", func(ctx context.Context, g *counterGrain) (any, error) {
		panic("bad mutation")
	})
	assert.True(t, kerror.IsType(err, "MutationPanic"))

	value, err := ResultAs[int](kind.Write(ctx, "g1", "s1", increment(2)))
	assert.Nil(t, err)
	assert.Equal(t, 2, value)
}

func TestSessionReplicaFailureIsReplicationUncertain(t *testing.T) {
	ctx := context.Background()
	dir := newFaultyDirectory()
	builder := NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain).
		WithDirectoryDecorator(dir.decorate)
	kind := buildKind(t, builder)

	sessionNode := kind.SessionNode("s1")
	dir.failSetState[sessionNode] = 1

	result, err := kind.Write(ctx, "g1", "s1", increment(3))
	assert.True(t, kerror.IsType(err, "ReplicationUncertain"))
	assert.Equal(t, kerror.EC_UNAVAILABLE, kerror.As(err).ErrorCode)
	assert.Equal(t, 3, result)

	// the mutation was applied; the replica activates from the grain on the next query
	value, err := ResultAs[int](kind.Read(ctx, "g1", "s1", readValue))
	assert.Nil(t, err)
	assert.Equal(t, 3, value)
}

func TestSessionReplicaFailureLogsElapsedVirtualTime(t *testing.T) {
	fake := kcommon.NewFakeTimeProvider(1000)
	kcommon.RunWithTimeProvider(fake, func() {
		ctx := context.Background()
		logger := &recordingLogger{}
		prev := klogging.GetLogger()
		klogging.SetDefaultLogger(logger)
		defer klogging.SetDefaultLogger(prev)

		dir := newFaultyDirectory()
		dir.beforeSetState = func() { fake.VirtualTimeForward(ctx, 250) }
		builder := NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain).
			WithDirectoryDecorator(dir.decorate)
		kind := buildKind(t, builder)
		dir.failSetState[kind.SessionNode("s1")] = 1

		_, err := kind.Write(ctx, "g1", "s1", increment(1))
		assert.True(t, kerror.IsType(err, "ReplicationUncertain"))
		elapsed, ok := logger.field("SessionReplicaUpdateFailed", "elapsedMs")
		assert.True(t, ok)
		assert.Equal(t, int64(250), elapsed)
	})
}

func TestBestEffortDropsFailedPush(t *testing.T) {
	ctx := context.Background()
	dir := newFaultyDirectory()
	builder := NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain).
		WithDirectoryDecorator(dir.decorate)
	kind := buildKind(t, builder)

	target := otherNode(kind, "s1")
	dir.failPush[target] = true

	_, err := kind.Write(ctx, "g1", "s1", increment(1))
	assert.Nil(t, err)

	sessionNode := kind.SessionNode("s1")
	for _, node := range topology.NodeLabels(10) {
		if node == target || node == sessionNode {
			continue
		}
		id := NewReplicaId("g1", node)
		assert.Eventually(t, func() bool {
			version, _ := kind.ReplicaVersion(ctx, id)
			return version == 1
		}, time.Second, 5*time.Millisecond)
	}
	version, err := kind.ReplicaVersion(ctx, NewReplicaId("g1", target))
	assert.Nil(t, err)
	assert.Equal(t, int64(-1), version)
	assert.Equal(t, 0, dir.SetStateCalls(target))
}

func TestStaleSnapshotIgnored(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	id := NewReplicaId("g1", "3")
	replica := kind.directory.Replica(id)
	assert.Nil(t, replica.SetState(ctx, Snapshot[*counterState]{GrainId: "g1", Version: 5, State: &counterState{Value: 50}}))
	assert.Nil(t, replica.SetState(ctx, Snapshot[*counterState]{GrainId: "g1", Version: 3, State: &counterState{Value: 30}}))

	version, err := kind.ReplicaVersion(ctx, id)
	assert.Nil(t, err)
	assert.Equal(t, int64(5), version)
	value, err := ResultAs[int](replica.Query(ctx, readValue))
	assert.Nil(t, err)
	assert.Equal(t, 50, value)
}

func TestReplicaKeepsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	id := NewReplicaId("g1", "0")
	state := &counterState{Value: 1, Tags: []string{"a"}}
	assert.Nil(t, kind.directory.Replica(id).SetState(ctx, Snapshot[*counterState]{GrainId: "g1", Version: 1, State: state}))
	state.Tags[0] = "mutated"

	tag, err := ResultAs[string](kind.directory.Replica(id).Query(ctx, func(ctx context.Context, s *counterState) (any, error) {
		return s.Tags[0], nil
	}))
	assert.Nil(t, err)
	assert.Equal(t, "a", tag)
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := ResultAs[int](kind.Write(ctx, "g1", fmt.Sprintf("s%d", i), increment(1)))
			assert.Nil(t, err)
			mu.Lock()
			seen[value] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, len(seen))
	value, err := ResultAs[int](kind.Write(ctx, "g1", "s1", increment(0)))
	assert.Nil(t, err)
	assert.Equal(t, 50, value)
}

func TestGrainsAreIndependent(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	_, err := kind.Write(ctx, "a", "s1", increment(1))
	assert.Nil(t, err)
	_, err = kind.Write(ctx, "b", "s1", increment(10))
	assert.Nil(t, err)

	a, _ := ResultAs[int](kind.Read(ctx, "a", "s1", readValue))
	b, _ := ResultAs[int](kind.Read(ctx, "b", "s1", readValue))
	assert.Equal(t, 1, a)
	assert.Equal(t, 10, b)
}

func TestEmptyGrainIdRejected(t *testing.T) {
	ctx := context.Background()
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain))

	_, err := kind.Write(ctx, "", "s1", increment(1))
	assert.True(t, kerror.IsType(err, "InvalidGrainId"))
	_, err = kind.Read(ctx, "", "s1", readValue)
	assert.True(t, kerror.IsType(err, "InvalidGrainId"))
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testKindConfig()
	cfg.ReplicaCount = 0
	_, err := NewGrainKindBuilder[*counterGrain, *counterState](cfg, newCounterGrain).Build(context.Background())
	assert.NotNil(t, err)
	assert.Equal(t, kerror.EC_INVALID_PARAMETER, kerror.As(err).ErrorCode)

	_, err = NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), nil).Build(context.Background())
	assert.True(t, kerror.IsType(err, "InvalidGrainKind"))
}

func TestStaticTopologyKind(t *testing.T) {
	ctx := context.Background()
	cfg := testKindConfig()
	cfg.Topology = "static"
	kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](cfg, newCounterGrain))

	assert.Equal(t, "6", kind.SessionNode("s1"))
	_, err := kind.Write(ctx, "g1", "s1", increment(4))
	assert.Nil(t, err)
	version, err := kind.ReplicaVersion(ctx, NewReplicaId("g1", "6"))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), version)
}

func TestStoppedKindRejectsCalls(t *testing.T) {
	ctx := context.Background()
	kind, err := NewGrainKindBuilder[*counterGrain, *counterState](testKindConfig(), newCounterGrain).Build(ctx)
	assert.Nil(t, err)
	_, err = kind.Write(ctx, "g1", "s1", increment(1))
	assert.Nil(t, err)

	kind.Stop(ctx)
	_, err = kind.Write(ctx, "g1", "s1", increment(1))
	assert.NotNil(t, err)
	assert.True(t, kerror.Retryable(err))
}
