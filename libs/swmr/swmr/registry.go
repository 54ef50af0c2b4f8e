package swmr

import (
	"context"
	"sync"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/krunloop"
)

// registry maps an identity to its actor's RunLoop, activating on first use.
// One registry per actor type per GrainKind, passed explicitly.
type registry[K comparable, R krunloop.CriticalResource] struct {
	ctx         context.Context
	name        string
	mailboxSize int
	create      func(key K) (R, error)
	attach      func(resource R, loop *krunloop.RunLoop[R]) // optional

	mu     sync.Mutex
	loops  map[K]*krunloop.RunLoop[R]
	closed bool
}

func newRegistry[K comparable, R krunloop.CriticalResource](ctx context.Context, name string, mailboxSize int, create func(K) (R, error)) *registry[K, R] {
	return &registry[K, R]{
		ctx:         ctx,
		name:        name,
		mailboxSize: mailboxSize,
		create:      create,
		loops:       make(map[K]*krunloop.RunLoop[R]),
	}
}

// Get returns the live actor for key, creating and starting it if needed.
func (reg *registry[K, R]) Get(key K) (*krunloop.RunLoop[R], error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return nil, kerror.Create("GrainKindStopped", "no new actors after stop").
			WithErrorCode(kerror.EC_UNAVAILABLE).With("registry", reg.name).WithoutStack()
	}
	if loop, ok := reg.loops[key]; ok && !loop.IsStopped() {
		return loop, nil
	}
	resource, err := reg.create(key)
	if err != nil {
		return nil, err
	}
	loop := krunloop.NewRunLoop(reg.ctx, resource, reg.name, krunloop.WithMailboxSize(reg.mailboxSize))
	if reg.attach != nil {
		reg.attach(resource, loop)
	}
	reg.loops[key] = loop
	go loop.Run(reg.ctx)
	klogging.Verbose(reg.ctx).With("registry", reg.name).With("key", key).Log("ActorActivated", "")
	return loop, nil
}

func (reg *registry[K, R]) Lookup(key K) (*krunloop.RunLoop[R], bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	loop, ok := reg.loops[key]
	return loop, ok
}

func (reg *registry[K, R]) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.loops)
}

func (reg *registry[K, R]) Keys() []K {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	keys := make([]K, 0, len(reg.loops))
	for k := range reg.loops {
		keys = append(keys, k)
	}
	return keys
}

func (reg *registry[K, R]) StopAll() {
	reg.mu.Lock()
	loops := make([]*krunloop.RunLoop[R], 0, len(reg.loops))
	for _, loop := range reg.loops {
		loops = append(loops, loop)
	}
	reg.loops = make(map[K]*krunloop.RunLoop[R])
	reg.closed = true
	reg.mu.Unlock()
	for _, loop := range loops {
		loop.StopAndWaitForExit()
	}
}
