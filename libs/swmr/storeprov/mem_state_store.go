package storeprov

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

// MemStateStore keeps snapshots in process memory. Failures can be injected for tests.
type MemStateStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	saveCount int
	failNext  int   // fail this many upcoming Saves
	failLoads int   // fail this many upcoming Loads
	failAll   error // fail every Save while set
}

func NewMemStateStore() *MemStateStore {
	return &MemStateStore{
		data: make(map[string][]byte),
	}
}

func (s *MemStateStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCount++
	if s.failAll != nil {
		return s.failAll
	}
	if s.failNext > 0 {
		s.failNext--
		return kerror.Create("InjectedSaveFailure", "save failed").WithErrorCode(kerror.EC_UNAVAILABLE).With("key", key)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.data[key] = copied
	return nil
}

func (s *MemStateStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoads > 0 {
		s.failLoads--
		return nil, false, kerror.Create("InjectedLoadFailure", "load failed").WithErrorCode(kerror.EC_UNAVAILABLE).With("key", key)
	}
	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, true, nil
}

func (s *MemStateStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStateStore) Close(ctx context.Context) error {
	return nil
}

// SaveCount is the number of Save attempts, successful or not
func (s *MemStateStore) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}

func (s *MemStateStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// FailAll makes every Save return err; nil restores normal behavior
func (s *MemStateStore) FailAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

func (s *MemStateStore) FailNextLoads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLoads = n
}
