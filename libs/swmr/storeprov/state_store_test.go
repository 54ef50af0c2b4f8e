package storeprov

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/swmr/etcdprov"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

func TestMemStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStateStore()

	_, found, err := store.Load(ctx, "prefs/g1")
	assert.Nil(t, err)
	assert.False(t, found)

	payload := []byte(`{"k":"v"}`)
	assert.Nil(t, store.Save(ctx, "prefs/g1", payload))
	payload[0] = 'X' // caller's buffer is not retained
	data, found, err := store.Load(ctx, "prefs/g1")
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"k":"v"}`, string(data))

	store.FailNext(2)
	assert.True(t, kerror.IsType(store.Save(ctx, "prefs/g1", []byte("a")), "InjectedSaveFailure"))
	assert.NotNil(t, store.Save(ctx, "prefs/g1", []byte("a")))
	assert.Nil(t, store.Save(ctx, "prefs/g1", []byte("a")))
	assert.Equal(t, 4, store.SaveCount())

	store.FailNextLoads(1)
	_, _, err = store.Load(ctx, "prefs/g1")
	assert.True(t, kerror.IsType(err, "InjectedLoadFailure"))
	_, found, err = store.Load(ctx, "prefs/g1")
	assert.Nil(t, err)
	assert.True(t, found)
}

func TestMemStateStoreKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemStateStore()
	assert.Nil(t, store.Save(ctx, "prefs/g2", []byte("b")))
	assert.Nil(t, store.Save(ctx, "prefs/g1", []byte("a")))
	assert.Nil(t, store.Save(ctx, "counter/g1", []byte("c")))

	keys, err := store.Keys(ctx, "prefs/")
	assert.Nil(t, err)
	assert.Equal(t, []string{"prefs/g1", "prefs/g2"}, keys)

	keys, err = store.Keys(ctx, "none/")
	assert.Nil(t, err)
	assert.Empty(t, keys)
}

func TestMongoStateStoreDocIdUsesPrefix(t *testing.T) {
	store := &MongoStateStore{prefix: "/swmr/"}
	assert.Equal(t, "/swmr/prefs/g1", store.docId("prefs/g1"))
	assert.Equal(t, "prefs/g1", store.keyOf("/swmr/prefs/g1"))
}

var (
	_ KeyLister = (*MemStateStore)(nil)
	_ KeyLister = (*EtcdStateStore)(nil)
	_ KeyLister = (*MongoStateStore)(nil)
)

func TestEtcdStateStoreWithFakeProvider(t *testing.T) {
	ctx := context.Background()
	provider := etcdprov.NewFakeEtcdProvider()
	store := NewEtcdStateStore(provider, "/swmr/")

	_, found, err := store.Load(ctx, "prefs/g1")
	assert.Nil(t, err)
	assert.False(t, found)

	assert.Nil(t, store.Save(ctx, "prefs/g1", []byte{0x00, 0xff, 0x10}))
	data, found, err := store.Load(ctx, "prefs/g1")
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, data)
	assert.Equal(t, "AP8Q", provider.Get(ctx, "/swmr/prefs/g1").Value)

	assert.Nil(t, store.Save(ctx, "counter/g1", []byte("c")))
	keys, err := store.Keys(ctx, "prefs/")
	assert.Nil(t, err)
	assert.Equal(t, []string{"prefs/g1"}, keys)

	provider.SetFailure(kerror.Create("EtcdPutError", "etcd down").WithErrorCode(kerror.EC_UNAVAILABLE))
	err = store.Save(ctx, "prefs/g1", []byte("x"))
	assert.True(t, kerror.IsType(err, "EtcdPutError"))
	assert.True(t, kerror.Retryable(err))
}

func TestEtcdStateStoreCorruptValue(t *testing.T) {
	ctx := context.Background()
	provider := etcdprov.NewFakeEtcdProvider()
	provider.Set(ctx, "/swmr/prefs/bad", "!!not-base64!!")
	_, _, err := NewEtcdStateStore(provider, "/swmr/").Load(ctx, "prefs/bad")
	assert.True(t, kerror.IsType(err, "CorruptState"))
}

func TestNewStateStoreMemory(t *testing.T) {
	store, err := NewStateStore(context.Background(), swmrconfig.StoreConfigJsonToConfig(nil))
	assert.Nil(t, err)
	assert.IsType(t, &MemStateStore{}, store)

	_, err = NewStateStore(context.Background(), swmrconfig.StoreConfig{Type: "cassandra"})
	assert.True(t, kerror.IsType(err, "InvalidStoreConfig"))
}
