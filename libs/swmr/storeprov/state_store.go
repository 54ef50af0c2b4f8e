package storeprov

import (
	"context"

	"github.com/xinkaiwang/swmr/libs/swmr/etcdprov"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// StateStore persists encoded grain snapshots. Keys are "<kind>/<grainId>"; each backend adds its own prefix.
type StateStore interface {
	Save(ctx context.Context, key string, data []byte) error
	// Load reports found=false (and no error) when the key has never been saved
	Load(ctx context.Context, key string) (data []byte, found bool, err error)
	Close(ctx context.Context) error
}

// KeyLister is implemented by stores that can enumerate what they hold.
// Keys are returned sorted, without the backend prefix.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// NewStateStore builds the backend named by cfg.Type.
func NewStateStore(ctx context.Context, cfg swmrconfig.StoreConfig) (StateStore, error) {
	switch cfg.Type {
	case swmrconfig.ST_Memory:
		return NewMemStateStore(), nil
	case swmrconfig.ST_Etcd:
		provider, err := etcdprov.NewDefaultEtcdProvider(ctx, etcdprov.EtcdConfig{
			Endpoints:     cfg.EtcdEndpoints,
			DialTimeoutMs: cfg.EtcdDialTimeoutMs,
		})
		if err != nil {
			return nil, err
		}
		return NewEtcdStateStore(provider, cfg.KeyPrefix), nil
	case swmrconfig.ST_Mongo:
		return NewMongoStateStore(ctx, MongoConfig{
			URI:        cfg.MongoURI,
			KeyPrefix:  cfg.KeyPrefix,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	}
	return nil, kerror.Create("InvalidStoreConfig", "unknown store type").
		WithErrorCode(kerror.EC_INVALID_PARAMETER).With("type", cfg.Type)
}
