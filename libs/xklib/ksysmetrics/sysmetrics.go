package ksysmetrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kmetrics"
	"go.opencensus.io/metric"
)

// memStatsCache avoids a stop-the-world ReadMemStats per gauge on every scrape.
type memStatsCache struct {
	mu       sync.Mutex
	stats    runtime.MemStats
	readTime time.Time
}

func (c *memStatsCache) get() runtime.MemStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.readTime) > time.Second {
		runtime.ReadMemStats(&c.stats)
		c.readTime = time.Now()
	}
	return c.stats
}

// Register adds process gauges (goroutines, heap, sys memory, gc) to r.
// version is attached as a label so dashboards can split by rollout.
func Register(r *metric.Registry, version string) error {
	cache := &memStatsCache{}
	labels := map[string]string{"version": version}
	gauges := []struct {
		name string
		desc string
		fn   func() int64
	}{
		{"process_goroutines", "number of goroutines", func() int64 { return int64(runtime.NumGoroutine()) }},
		{"process_heap_bytes", "heap bytes allocated", func() int64 { return int64(cache.get().HeapAlloc) }},
		{"process_sys_bytes", "bytes obtained from the OS", func() int64 { return int64(cache.get().Sys) }},
		{"process_gc_count", "completed GC cycles", func() int64 { return int64(cache.get().NumGC) }},
		{"process_gc_pause_total_ns", "cumulative GC pause", func() int64 { return int64(cache.get().PauseTotalNs) }},
	}
	for _, g := range gauges {
		if err := kmetrics.AddInt64DerivedGauge(r, g.fn, g.name, g.desc, labels); err != nil {
			return err
		}
	}
	return nil
}
