package kmetrics

import (
	"sync"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"go.opencensus.io/metric/metricdata"
	"go.opencensus.io/resource"
)

// GaugeGroup is a set of gauges sharing one name whose tag values come and go, such as
// "retry count per grain with a failing lazy writer". The whole set is replaced on each update.
type GaugeGroup struct {
	mu          sync.Mutex
	metricName  string
	description string
	tagNames    []string
	startTime   time.Time
	dict        map[string]*GaugeTimeSequence
}

func NewGaugeGroup(name, desc string, tagNames ...string) *GaugeGroup {
	gg := &GaugeGroup{
		metricName:  name,
		description: desc,
		tagNames:    tagNames,
		startTime:   time.Now(),
		dict:        make(map[string]*GaugeTimeSequence),
	}
	GetKmetricsRegistry().RegisterGaugeGroup(gg)
	return gg
}

func (gg *GaugeGroup) UpdateValue(list []*GaugeTimeSequence) {
	dict := make(map[string]*GaugeTimeSequence, len(list))
	for _, item := range list {
		dict[item.Key] = item
	}
	gg.mu.Lock()
	defer gg.mu.Unlock()
	gg.dict = dict
}

func (gg *GaugeGroup) Read() *metricdata.Metric {
	keys := make([]metricdata.LabelKey, len(gg.tagNames))
	for i, tagName := range gg.tagNames {
		keys[i] = metricdata.LabelKey{Key: tagName}
	}
	now := time.Now()
	timeSeries := []*metricdata.TimeSeries{}
	gg.mu.Lock()
	for _, ts := range gg.dict {
		timeSeries = append(timeSeries, &metricdata.TimeSeries{
			LabelValues: ts.labelValues,
			Points:      []metricdata.Point{metricdata.NewInt64Point(now, ts.Value)},
			StartTime:   gg.startTime,
		})
	}
	gg.mu.Unlock()
	return &metricdata.Metric{
		Descriptor: metricdata.Descriptor{
			Name:        gg.metricName,
			Description: gg.description,
			Unit:        metricdata.UnitDimensionless,
			Type:        metricdata.TypeGaugeInt64,
			LabelKeys:   keys,
		},
		Resource:   &resource.Resource{Type: resourceType, Labels: map[string]string{}},
		TimeSeries: timeSeries,
	}
}

// GaugeTimeSequence is one tag value combination with its current value
type GaugeTimeSequence struct {
	Key         string
	labelValues []metricdata.LabelValue
	Value       int64
}

func NewGaugeTimeSequence(parent *GaugeGroup, value int64, tags ...string) *GaugeTimeSequence {
	if len(tags) != len(parent.tagNames) {
		panic(kerror.Create("TagsCountDoesNotMatch", "").With("metricName", parent.metricName))
	}
	values := make([]metricdata.LabelValue, len(tags))
	for i, item := range tags {
		values[i] = metricdata.NewLabelValue(item)
	}
	return &GaugeTimeSequence{
		Key:         makeSequenceKey(tags...),
		labelValues: values,
		Value:       value,
	}
}
