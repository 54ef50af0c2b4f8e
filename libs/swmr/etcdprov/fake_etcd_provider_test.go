package etcdprov

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

func TestFakeEtcdProviderBasic(t *testing.T) {
	ctx := context.Background()
	provider := NewFakeEtcdProvider()

	provider.Set(ctx, "/swmr/prefs/g1", "v1")
	item := provider.Get(ctx, "/swmr/prefs/g1")
	assert.Equal(t, "v1", item.Value)
	assert.Equal(t, EtcdRevision(2), item.ModRevision)

	provider.Set(ctx, "/swmr/prefs/g1", "v2")
	assert.Equal(t, EtcdRevision(3), provider.Get(ctx, "/swmr/prefs/g1").ModRevision)

	missing := provider.Get(ctx, "/swmr/prefs/none")
	assert.Equal(t, EtcdRevision(0), missing.ModRevision)
	assert.Equal(t, "", missing.Value)

	provider.Delete(ctx, "/swmr/prefs/g1", true)
	assert.Equal(t, EtcdRevision(0), provider.Get(ctx, "/swmr/prefs/g1").ModRevision)
	assert.Panics(t, func() { provider.Delete(ctx, "/swmr/prefs/g1", true) })
	assert.NotPanics(t, func() { provider.Delete(ctx, "/swmr/prefs/g1", false) })
}

func TestFakeEtcdProviderList(t *testing.T) {
	ctx := context.Background()
	provider := NewFakeEtcdProvider()
	provider.Set(ctx, "/swmr/prefs/b", "2")
	provider.Set(ctx, "/swmr/prefs/a", "1")
	provider.Set(ctx, "/swmr/other/c", "3")

	items := provider.List(ctx, "/swmr/prefs/", 0)
	assert.Len(t, items, 2)
	assert.Equal(t, "/swmr/prefs/a", items[0].Key)
	assert.Len(t, provider.List(ctx, "/swmr/", 1), 1)
}

func TestFakeEtcdProviderFailure(t *testing.T) {
	ctx := context.Background()
	provider := NewFakeEtcdProvider()
	provider.SetFailure(kerror.Create("EtcdPutError", "injected").WithErrorCode(kerror.EC_UNAVAILABLE))
	assert.Panics(t, func() { provider.Set(ctx, "/k", "v") })
	provider.SetFailure(nil)
	assert.NotPanics(t, func() { provider.Set(ctx, "/k", "v") })
}
