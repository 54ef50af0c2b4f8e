package kmetrics

import (
	"sync"
	"sync/atomic"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"go.opencensus.io/metric/metricdata"
)

// KmetricsRegistry implements metricproducer.Producer, main() adds it to
// metricproducer.GlobalManager() so the prometheus exporter picks everything up.
type KmetricsRegistry struct {
	mu         sync.Mutex
	collection atomic.Pointer[kmetricsCollection]
	globalTags map[string]string
	tagOwners  map[string]string // tag name -> metric name
}

func NewKmetricsRegistry() *KmetricsRegistry {
	registry := &KmetricsRegistry{
		globalTags: make(map[string]string),
		tagOwners:  make(map[string]string),
	}
	registry.collection.Store(newKmetricsCollection())
	return registry
}

var kmetricsRegistry = NewKmetricsRegistry()

func GetKmetricsRegistry() *KmetricsRegistry {
	return kmetricsRegistry
}

// kmetricsCollection is immutable once published
type kmetricsCollection struct {
	counters    map[string]*Kmetric
	gaugeGroups map[string]*GaugeGroup
}

func newKmetricsCollection() *kmetricsCollection {
	return &kmetricsCollection{
		counters:    make(map[string]*Kmetric),
		gaugeGroups: make(map[string]*GaugeGroup),
	}
}

func (c *kmetricsCollection) clone() *kmetricsCollection {
	next := newKmetricsCollection()
	for k, v := range c.counters {
		next.counters[k] = v
	}
	for k, v := range c.gaugeGroups {
		next.gaugeGroups[k] = v
	}
	return next
}

func (registry *KmetricsRegistry) RegisterKmetric(km *Kmetric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.checkForTagNameConflicts(km.tagNames)
	for _, tagName := range km.tagNames {
		registry.tagOwners[tagName] = km.metricName
	}
	next := registry.collection.Load().clone()
	next.counters[km.metricName] = km
	registry.collection.Store(next)
}

func (registry *KmetricsRegistry) RegisterGaugeGroup(gg *GaugeGroup) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.checkForTagNameConflicts(gg.tagNames)
	for _, tagName := range gg.tagNames {
		registry.tagOwners[tagName] = gg.metricName
	}
	next := registry.collection.Load().clone()
	next.gaugeGroups[gg.metricName] = gg
	registry.collection.Store(next)
}

// Read implements metricproducer.Producer
func (registry *KmetricsRegistry) Read() []*metricdata.Metric {
	collection := registry.collection.Load()
	registry.mu.Lock()
	globalTags := make(map[string]string, len(registry.globalTags))
	for k, v := range registry.globalTags {
		globalTags[k] = v
	}
	registry.mu.Unlock()

	list := []*metricdata.Metric{}
	for _, km := range collection.counters {
		list = append(list, attachGlobalTags(km.ReadCount(), globalTags))
		if !km.countOnly {
			list = append(list, attachGlobalTags(km.ReadSum(), globalTags))
		}
	}
	for _, gg := range collection.gaugeGroups {
		list = append(list, attachGlobalTags(gg.Read(), globalTags))
	}
	return list
}

func attachGlobalTags(metric *metricdata.Metric, globalTags map[string]string) *metricdata.Metric {
	for key, value := range globalTags {
		metric.Descriptor.LabelKeys = append(metric.Descriptor.LabelKeys, metricdata.LabelKey{Key: key})
		for _, ts := range metric.TimeSeries {
			ts.LabelValues = append(ts.LabelValues, metricdata.NewLabelValue(value))
		}
	}
	return metric
}

// AddGlobalTag attaches key=value to every exported metric (e.g. node=3).
// Returns an error if a registered metric already uses key as a tag name.
func (registry *KmetricsRegistry) AddGlobalTag(key, value string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if metricName, exists := registry.tagOwners[key]; exists {
		return kerror.Create("TagNameConflict", "global tag conflicts with a metric tag").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).
			With("tagName", key).With("metricName", metricName)
	}
	registry.globalTags[key] = value
	return nil
}

func (registry *KmetricsRegistry) checkForTagNameConflicts(tagNames []string) {
	for _, tagName := range tagNames {
		if _, exists := registry.globalTags[tagName]; exists {
			panic(kerror.Create("TagNameConflict", "metric tag conflicts with a global tag").With("tagName", tagName))
		}
	}
}
