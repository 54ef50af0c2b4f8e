package etcdprov

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

type EtcdRevision int64

type EtcdKvItem struct {
	Key         string
	Value       string
	ModRevision EtcdRevision
}

// EtcdProvider is the subset of etcd the state store needs.
// Implementations panic with a *kerror.Kerror on failure; wrap calls with kcommon.TryCatchRun.
type EtcdProvider interface {
	// Get returns an item with ModRevision=0 when the key does not exist
	Get(ctx context.Context, key string) EtcdKvItem

	// List returns keys with the given prefix in key order; maxCount=0 means all
	List(ctx context.Context, prefix string, maxCount int) []EtcdKvItem

	Set(ctx context.Context, key, value string)

	// Delete panics with KeyNotFound if strict and the key is absent
	Delete(ctx context.Context, key string, strict bool)

	Close() error
}

func errKeyNotFound(key string) *kerror.Kerror {
	return kerror.Create("KeyNotFound", "key not found").WithErrorCode(kerror.EC_NOT_FOUND).With("key", key)
}
