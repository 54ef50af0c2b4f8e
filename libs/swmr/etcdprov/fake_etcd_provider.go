package etcdprov

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// FakeEtcdProvider is an in-memory EtcdProvider for tests and single-process runs.
type FakeEtcdProvider struct {
	mu              sync.RWMutex
	data            map[string]*fakeKV
	currentRevision EtcdRevision

	// failWith, when set, makes Set and Get panic with it
	failWith *kerror.Kerror
}

type fakeKV struct {
	Value       string
	ModRevision EtcdRevision
}

func NewFakeEtcdProvider() *FakeEtcdProvider {
	return &FakeEtcdProvider{
		data:            make(map[string]*fakeKV),
		currentRevision: 1,
	}
}

// SetFailure makes subsequent Get/Set calls fail until cleared with nil
func (f *FakeEtcdProvider) SetFailure(ke *kerror.Kerror) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = ke
}

func (f *FakeEtcdProvider) Get(ctx context.Context, key string) EtcdKvItem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failWith != nil {
		panic(f.failWith)
	}
	if kv, exists := f.data[key]; exists {
		return EtcdKvItem{Key: key, Value: kv.Value, ModRevision: kv.ModRevision}
	}
	return EtcdKvItem{Key: key}
}

func (f *FakeEtcdProvider) Set(ctx context.Context, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		panic(f.failWith)
	}
	f.currentRevision++
	f.data[key] = &fakeKV{Value: value, ModRevision: f.currentRevision}
}

func (f *FakeEtcdProvider) Delete(ctx context.Context, key string, strict bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; !exists {
		if strict {
			panic(errKeyNotFound(key))
		}
		return
	}
	f.currentRevision++
	delete(f.data, key)
}

func (f *FakeEtcdProvider) List(ctx context.Context, prefix string, maxCount int) []EtcdKvItem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	items := []EtcdKvItem{}
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix) {
			items = append(items, EtcdKvItem{Key: k, Value: v.Value, ModRevision: v.ModRevision})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	if maxCount > 0 && len(items) > maxCount {
		items = items[:maxCount]
	}
	return items
}

func (f *FakeEtcdProvider) Close() error {
	return nil
}
