package storeprov

import (
	"context"
	"encoding/base64"
	"sort"

	"github.com/xinkaiwang/swmr/libs/swmr/etcdprov"
	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// EtcdStateStore stores base64 snapshots under <prefix><key>.
type EtcdStateStore struct {
	provider etcdprov.EtcdProvider
	prefix   string
}

func NewEtcdStateStore(provider etcdprov.EtcdProvider, prefix string) *EtcdStateStore {
	return &EtcdStateStore{
		provider: provider,
		prefix:   prefix,
	}
}

func (s *EtcdStateStore) Save(ctx context.Context, key string, data []byte) error {
	if ke := kcommon.TryCatchRun(ctx, func() {
		s.provider.Set(ctx, s.prefix+key, base64.StdEncoding.EncodeToString(data))
	}); ke != nil {
		return ke
	}
	return nil
}

func (s *EtcdStateStore) Load(ctx context.Context, key string) (data []byte, found bool, err error) {
	var item etcdprov.EtcdKvItem
	if ke := kcommon.TryCatchRun(ctx, func() {
		item = s.provider.Get(ctx, s.prefix+key)
	}); ke != nil {
		return nil, false, ke
	}
	if item.ModRevision == 0 {
		return nil, false, nil
	}
	data, decodeErr := base64.StdEncoding.DecodeString(item.Value)
	if decodeErr != nil {
		return nil, false, kerror.Wrap(decodeErr, "CorruptState", "stored state is not valid base64", false).
			WithErrorCode(kerror.EC_INTERNAL_ERROR).With("key", s.prefix+key)
	}
	return data, true, nil
}

// Keys lists stored keys starting with prefix
func (s *EtcdStateStore) Keys(ctx context.Context, prefix string) (keys []string, err error) {
	if ke := kcommon.TryCatchRun(ctx, func() {
		for _, item := range s.provider.List(ctx, s.prefix+prefix, 0) {
			keys = append(keys, item.Key[len(s.prefix):])
		}
	}); ke != nil {
		return nil, ke
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *EtcdStateStore) Close(ctx context.Context) error {
	return s.provider.Close()
}
