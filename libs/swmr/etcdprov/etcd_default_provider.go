package etcdprov

import (
	"context"
	"strings"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type EtcdConfig struct {
	Endpoints     []string
	DialTimeoutMs int
	OpTimeoutMs   int
}

// etcdDefaultProvider implements EtcdProvider over clientv3
type etcdDefaultProvider struct {
	client    *clientv3.Client
	opTimeout time.Duration
}

// NewDefaultEtcdProvider dials etcd. Returns EtcdConnectError if the client cannot be built.
func NewDefaultEtcdProvider(ctx context.Context, cfg EtcdConfig) (EtcdProvider, error) {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"localhost:2379"}
	}
	if cfg.DialTimeoutMs <= 0 {
		cfg.DialTimeoutMs = 5000
	}
	if cfg.OpTimeoutMs <= 0 {
		cfg.OpTimeoutMs = 3000
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: time.Duration(cfg.DialTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, kerror.Wrap(err, "EtcdConnectError", "failed to connect to etcd", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).
			With("endpoints", strings.Join(cfg.Endpoints, ","))
	}
	klogging.Info(ctx).With("endpoints", strings.Join(cfg.Endpoints, ",")).Log("EtcdConnected", "etcd client created")
	return &etcdDefaultProvider{
		client:    cli,
		opTimeout: time.Duration(cfg.OpTimeoutMs) * time.Millisecond,
	}, nil
}

func (pvd *etcdDefaultProvider) Get(ctx context.Context, key string) EtcdKvItem {
	ctx, cancel := context.WithTimeout(ctx, pvd.opTimeout)
	defer cancel()
	resp, err := pvd.client.Get(ctx, key)
	if err != nil {
		panic(kerror.Wrap(err, "EtcdGetError", "failed to get key from etcd", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).
			With("key", key))
	}
	if len(resp.Kvs) == 0 {
		return EtcdKvItem{Key: key}
	}
	kv := resp.Kvs[0]
	return EtcdKvItem{
		Key:         string(kv.Key),
		Value:       string(kv.Value),
		ModRevision: EtcdRevision(kv.ModRevision),
	}
}

func (pvd *etcdDefaultProvider) List(ctx context.Context, prefix string, maxCount int) []EtcdKvItem {
	ctx, cancel := context.WithTimeout(ctx, pvd.opTimeout)
	defer cancel()
	opts := []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	}
	if maxCount > 0 {
		opts = append(opts, clientv3.WithLimit(int64(maxCount)))
	}
	resp, err := pvd.client.Get(ctx, prefix, opts...)
	if err != nil {
		panic(kerror.Wrap(err, "EtcdListError", "failed to list keys from etcd", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).
			With("prefix", prefix))
	}
	items := make([]EtcdKvItem, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		items = append(items, EtcdKvItem{
			Key:         string(kv.Key),
			Value:       string(kv.Value),
			ModRevision: EtcdRevision(kv.ModRevision),
		})
	}
	klogging.Debug(ctx).With("prefix", prefix).With("count", len(items)).Log("EtcdList", "")
	return items
}

func (pvd *etcdDefaultProvider) Set(ctx context.Context, key, value string) {
	ctx, cancel := context.WithTimeout(ctx, pvd.opTimeout)
	defer cancel()
	if _, err := pvd.client.Put(ctx, key, value); err != nil {
		panic(kerror.Wrap(err, "EtcdPutError", "failed to set key in etcd", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).
			With("key", key))
	}
}

func (pvd *etcdDefaultProvider) Delete(ctx context.Context, key string, strict bool) {
	ctx, cancel := context.WithTimeout(ctx, pvd.opTimeout)
	defer cancel()
	resp, err := pvd.client.Delete(ctx, key)
	if err != nil {
		panic(kerror.Wrap(err, "EtcdDeleteError", "failed to delete key from etcd", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).
			With("key", key))
	}
	if strict && resp.Deleted == 0 {
		panic(errKeyNotFound(key))
	}
}

func (pvd *etcdDefaultProvider) Close() error {
	return pvd.client.Close()
}
