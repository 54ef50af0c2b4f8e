package swmr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
)

func atLeastOnceConfig() swmrconfig.KindConfig {
	cfg := testKindConfig()
	cfg.ReplicationPolicy = swmrconfig.RP_AtLeastOnce
	cfg.RetryBaseDelayMs = 100
	cfg.RetryMaxDelayMs = 5000
	return cfg
}

func TestBackoff(t *testing.T) {
	r := newReplicator[*counterState](context.Background(), atLeastOnceConfig(), nil)
	ctx := context.Background()

	d1 := r.backoffMs(ctx, 1)
	assert.True(t, d1 >= 90 && d1 < 110, d1)
	d3 := r.backoffMs(ctx, 3)
	assert.True(t, d3 >= 360 && d3 < 440, d3)
	d10 := r.backoffMs(ctx, 10)
	assert.True(t, d10 >= 4500 && d10 < 5500, d10)
}

func TestAtLeastOnceRetriesUntilDelivered(t *testing.T) {
	fake := kcommon.NewFakeTimeProvider(1000)
	kcommon.RunWithTimeProvider(fake, func() {
		ctx := context.Background()
		dir := newFaultyDirectory()
		kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](atLeastOnceConfig(), newCounterGrain).
			WithDirectoryDecorator(dir.decorate))

		target := otherNode(kind, "s1")
		dir.failSetState[target] = 2

		_, err := kind.Write(ctx, "g1", "s1", increment(1))
		assert.Nil(t, err)

		id := NewReplicaId("g1", target)
		assert.Eventually(t, func() bool {
			fake.VirtualTimeForward(ctx, 1000)
			version, _ := kind.ReplicaVersion(ctx, id)
			return version == 1
		}, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, 3, dir.SetStateCalls(target))
	})
}

func TestAtLeastOnceGivesUp(t *testing.T) {
	fake := kcommon.NewFakeTimeProvider(1000)
	kcommon.RunWithTimeProvider(fake, func() {
		ctx := context.Background()
		dir := newFaultyDirectory()
		cfg := atLeastOnceConfig()
		cfg.RetryMaxAttempts = 3
		kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](cfg, newCounterGrain).
			WithDirectoryDecorator(dir.decorate))

		target := otherNode(kind, "s1")
		dir.failSetState[target] = -1

		_, err := kind.Write(ctx, "g1", "s1", increment(1))
		assert.Nil(t, err)

		assert.Eventually(t, func() bool {
			fake.VirtualTimeForward(ctx, 1000)
			return dir.SetStateCalls(target) == 3
		}, 3*time.Second, 10*time.Millisecond)

		fake.VirtualTimeForward(ctx, 60000)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 3, dir.SetStateCalls(target))
		assert.Equal(t, 0, fake.PendingTasks())
	})
}

func TestAtLeastOnceSupersededRetryIsSkipped(t *testing.T) {
	fake := kcommon.NewFakeTimeProvider(1000)
	kcommon.RunWithTimeProvider(fake, func() {
		ctx := context.Background()
		dir := newFaultyDirectory()
		kind := buildKind(t, NewGrainKindBuilder[*counterGrain, *counterState](atLeastOnceConfig(), newCounterGrain).
			WithDirectoryDecorator(dir.decorate))

		target := otherNode(kind, "s1")
		dir.failSetState[target] = 1

		_, err := kind.Write(ctx, "g1", "s1", increment(1))
		assert.Nil(t, err)
		// version 1 failed once and waits for its retry
		assert.Eventually(t, func() bool { return fake.PendingTasks() == 1 }, time.Second, 5*time.Millisecond)

		_, err = kind.Write(ctx, "g1", "s1", increment(1))
		assert.Nil(t, err)
		id := NewReplicaId("g1", target)
		assert.Eventually(t, func() bool {
			version, _ := kind.ReplicaVersion(ctx, id)
			return version == 2
		}, time.Second, 5*time.Millisecond)

		fake.VirtualTimeForward(ctx, 1000)
		time.Sleep(20 * time.Millisecond)
		// the stale retry never reached the directory
		assert.Equal(t, 2, dir.SetStateCalls(target))
	})
}
