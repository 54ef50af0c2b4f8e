package swmr

import (
	"context"
	"time"

	"github.com/xinkaiwang/swmr/libs/swmr/lazywriter"
	"github.com/xinkaiwang/swmr/libs/swmr/storeprov"
	"github.com/xinkaiwang/swmr/libs/swmr/swmrconfig"
	"github.com/xinkaiwang/swmr/libs/swmr/topology"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
	"github.com/xinkaiwang/swmr/libs/xklib/krunloop"
	"go.opencensus.io/metric"
)

// GrainKind hosts every grain of one type: its actor registries, replicator and reader pool.
type GrainKind[G Grain[S], S State[S]] struct {
	name        string
	config      swmrconfig.KindConfig
	newGrain    func(id GrainId) G
	codec       StateCodec[S]
	store       storeprov.StateStore
	callTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	grains   *registry[GrainId, *grainActor[G, S]]
	writers  *registry[GrainId, *writerActor[G, S]]
	replicas *registry[ReplicaId, *replicaActor[G, S]]

	directory      ReplicaDirectory[S]
	replicator     *replicator[S]
	readerTopology topology.Topology
	pool           *ReaderPool
}

type GrainKindBuilder[G Grain[S], S State[S]] struct {
	config   swmrconfig.KindConfig
	newGrain func(id GrainId) G
	codec    StateCodec[S]
	store    storeprov.StateStore
	decorate func(ReplicaDirectory[S]) ReplicaDirectory[S]
}

func NewGrainKindBuilder[G Grain[S], S State[S]](config swmrconfig.KindConfig, newGrain func(id GrainId) G) *GrainKindBuilder[G, S] {
	return &GrainKindBuilder[G, S]{
		config:   config,
		newGrain: newGrain,
		codec:    JsonCodec[S]{},
	}
}

// WithStore enables restore on activation, and lazy persistence when the config asks for it.
func (b *GrainKindBuilder[G, S]) WithStore(store storeprov.StateStore) *GrainKindBuilder[G, S] {
	b.store = store
	return b
}

func (b *GrainKindBuilder[G, S]) WithCodec(codec StateCodec[S]) *GrainKindBuilder[G, S] {
	b.codec = codec
	return b
}

// WithDirectoryDecorator wraps how replicas are reached, e.g. to inject faults in tests.
func (b *GrainKindBuilder[G, S]) WithDirectoryDecorator(decorate func(ReplicaDirectory[S]) ReplicaDirectory[S]) *GrainKindBuilder[G, S] {
	b.decorate = decorate
	return b
}

// Build validates the configuration and starts the reader pool. Actors start on first use.
func (b *GrainKindBuilder[G, S]) Build(ctx context.Context) (*GrainKind[G, S], error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.newGrain == nil {
		return nil, kerror.Create("InvalidGrainKind", "grain factory is required").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("kind", b.config.Name)
	}
	readerTopology, err := NewTopology(b.config)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(klogging.EmbedKv(ctx, "kind", b.config.Name))
	kind := &GrainKind[G, S]{
		name:           b.config.Name,
		config:         b.config,
		newGrain:       b.newGrain,
		codec:          b.codec,
		store:          b.store,
		callTimeout:    time.Duration(b.config.CallTimeoutMs) * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
		readerTopology: readerTopology,
	}
	kind.grains = newRegistry(ctx, "grain", b.config.MailboxSize, func(id GrainId) (*grainActor[G, S], error) {
		return &grainActor[G, S]{kind: kind, id: id}, nil
	})
	kind.grains.attach = func(a *grainActor[G, S], loop *krunloop.RunLoop[*grainActor[G, S]]) { a.loop = loop }
	kind.writers = newRegistry(ctx, "writer", b.config.MailboxSize, func(id GrainId) (*writerActor[G, S], error) {
		topo, err := NewTopology(kind.config)
		if err != nil {
			return nil, err
		}
		return &writerActor[G, S]{kind: kind, id: id, topology: topo}, nil
	})
	kind.replicas = newRegistry(ctx, "replica", b.config.MailboxSize, func(id ReplicaId) (*replicaActor[G, S], error) {
		return &replicaActor[G, S]{kind: kind, id: id}, nil
	})
	var directory ReplicaDirectory[S] = &localDirectory[G, S]{kind: kind}
	if b.decorate != nil {
		directory = b.decorate(directory)
	}
	kind.directory = directory
	kind.replicator = newReplicator[S](ctx, b.config, directory)
	kind.pool = NewReaderPool(ctx, b.config.ReaderPoolSize, b.config.Name+".reader")
	klogging.Info(ctx).With("replicaCount", b.config.ReplicaCount).With("topology", b.config.Topology).
		With("replication", b.config.ReplicationPolicy).With("lazyWrite", b.config.LazyWrite).
		Log("GrainKindStarted", "")
	return kind, nil
}

// NewTopology builds a fresh topology from a kind's configuration. Writer and Reader each call it.
func NewTopology(config swmrconfig.KindConfig) (topology.Topology, error) {
	nodes := topology.NodeLabels(config.ReplicaCount)
	switch config.Topology {
	case swmrconfig.TT_Static:
		return topology.NewStaticTopology(nodes)
	default:
		return topology.NewConsistentHashTopologyWithNodes(nodes, config.VirtualPoints)
	}
}

func (k *GrainKind[G, S]) Name() string {
	return k.name
}

func (k *GrainKind[G, S]) Config() swmrconfig.KindConfig {
	return k.config
}

func (k *GrainKind[G, S]) Writer(id GrainId) *Writer[G, S] {
	return &Writer[G, S]{kind: k, grainId: id}
}

func (k *GrainKind[G, S]) Reader(id GrainId) *Reader[G, S] {
	return &Reader[G, S]{kind: k, grainId: id}
}

func (k *GrainKind[G, S]) Write(ctx context.Context, id GrainId, sessionId string, mutation Mutation[G]) (any, error) {
	return k.Writer(id).Invoke(ctx, sessionId, mutation)
}

func (k *GrainKind[G, S]) Read(ctx context.Context, id GrainId, sessionId string, query Query[S]) (any, error) {
	return k.Reader(id).Invoke(ctx, sessionId, query)
}

// SessionNode is the replica node the Reader routes sessionId to.
func (k *GrainKind[G, S]) SessionNode(sessionId string) string {
	return k.readerTopology.GetNode(sessionId)
}

func (k *GrainKind[G, S]) LazyWriterStatus(ctx context.Context, id GrainId) (lazywriter.Status, error) {
	loop, err := k.grains.Get(id)
	if err != nil {
		return lazywriter.Status{}, err
	}
	ch := newResponseChan[lazywriter.Status]()
	return call(ctx, k.callTimeout, loop, &lazyStatusEvent[G, S]{resp: ch}, ch)
}

// ResetLazyWriter clears a permanent persistence failure and resumes ticking.
func (k *GrainKind[G, S]) ResetLazyWriter(ctx context.Context, id GrainId) (lazywriter.Status, error) {
	loop, err := k.grains.Get(id)
	if err != nil {
		return lazywriter.Status{}, err
	}
	ch := newResponseChan[lazywriter.Status]()
	return call(ctx, k.callTimeout, loop, &lazyResetEvent[G, S]{resp: ch}, ch)
}

// ReplicaVersion reports the cached version of one replica, -1 when it is not active.
func (k *GrainKind[G, S]) ReplicaVersion(ctx context.Context, id ReplicaId) (int64, error) {
	loop, ok := k.replicas.Lookup(id)
	if !ok {
		return -1, nil
	}
	ch := newResponseChan[int64]()
	return call(ctx, k.callTimeout, loop, &replicaVersionEvent[G, S]{resp: ch}, ch)
}

type KindStats struct {
	Grains   int `json:"grains"`
	Writers  int `json:"writers"`
	Replicas int `json:"replicas"`
}

func (k *GrainKind[G, S]) Stats() KindStats {
	return KindStats{Grains: k.grains.Len(), Writers: k.writers.Len(), Replicas: k.replicas.Len()}
}

// RegisterGauges exports the active actor counts of this kind.
func (k *GrainKind[G, S]) RegisterGauges(r *metric.Registry) error {
	labels := map[string]string{"kind": k.name}
	if err := kmetrics.AddInt64DerivedGauge(r, func() int64 { return int64(k.grains.Len()) }, "swmr_active_grains", "active grain actors", labels); err != nil {
		return err
	}
	return kmetrics.AddInt64DerivedGauge(r, func() int64 { return int64(k.replicas.Len()) }, "swmr_active_replicas", "active read replicas", labels)
}

// Stop flushes lazy writes, then stops every actor and the reader pool.
func (k *GrainKind[G, S]) Stop(ctx context.Context) {
	flushed := 0
	for _, id := range k.grains.Keys() {
		loop, ok := k.grains.Lookup(id)
		if !ok {
			continue
		}
		ch := newResponseChan[bool]()
		attempted, err := call(ctx, k.callTimeout, loop, &flushEvent[G, S]{resp: ch}, ch)
		if err != nil {
			klogging.Warning(ctx).With("grainId", id).WithError(err).Log("FlushFailed", "")
			continue
		}
		if attempted {
			flushed++
		}
	}
	k.pool.StopAndWaitForExit()
	k.writers.StopAll()
	k.replicas.StopAll()
	k.grains.StopAll()
	lazyHealth.forgetKind(k.name)
	k.cancel()
	klogging.Info(ctx).With("kind", k.name).With("flushed", flushed).Log("GrainKindStopped", "")
}

func (k *GrainKind[G, S]) applyMutation(ctx context.Context, id GrainId, mutation Mutation[G]) (mutateResult[S], error) {
	loop, err := k.grains.Get(id)
	if err != nil {
		return mutateResult[S]{}, err
	}
	ch := newResponseChan[mutateResult[S]]()
	return call(ctx, k.callTimeout, loop, &mutateEvent[G, S]{mutation: mutation, resp: ch}, ch)
}

func (k *GrainKind[G, S]) grainSnapshot(ctx context.Context, id GrainId) (Snapshot[S], error) {
	loop, err := k.grains.Get(id)
	if err != nil {
		return Snapshot[S]{}, err
	}
	ch := newResponseChan[Snapshot[S]]()
	return call(ctx, k.callTimeout, loop, &getSnapshotEvent[G, S]{resp: ch}, ch)
}

func (k *GrainKind[G, S]) storeKey(id GrainId) string {
	return k.name + "/" + string(id)
}

func (k *GrainKind[G, S]) lazyConfig() lazywriter.Config {
	return lazywriter.Config{
		InitialDelayMs:         k.config.LazyWriteInitialDelayMs,
		PeriodMs:               k.config.LazyWritePeriodMs,
		MaxConsecutiveFailures: k.config.MaxConsecutiveFailures,
	}
}

func errReadTimeout(cause error) *kerror.Kerror {
	return kerror.Wrap(cause, "CallTimeout", "no reply from replica before deadline", false).WithErrorCode(kerror.EC_TIMEOUT)
}
