package kmetrics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"go.opencensus.io/metric/metricdata"
	"go.opencensus.io/resource"
)

const resourceType = "swmr"

// Kmetric is one counter-style metric, exported as <name>_count and <name>_sum.
// Each distinct tag value combination is one TimeSequence.
type Kmetric struct {
	mu          sync.Mutex // held only while adding a TimeSequence
	metricName  string
	description string
	tagNames    []string
	sequences   atomic.Pointer[map[string]*TimeSequence] // copy-on-write
	startTime   time.Time
	countOnly   bool
}

func CreateKmetric(ctx context.Context, name string, description string, tags []string) *Kmetric {
	km := &Kmetric{
		metricName:  name,
		description: description,
		tagNames:    tags,
		startTime:   time.Now(),
	}
	empty := map[string]*TimeSequence{}
	km.sequences.Store(&empty)
	GetKmetricsRegistry().RegisterKmetric(km)
	return km
}

func (km *Kmetric) CountOnly() *Kmetric {
	km.countOnly = true
	return km
}

func makeSequenceKey(tags ...string) string {
	return strings.Join(tags, "-")
}

// GetTimeSequence: tags must match tagNames in length and order.
func (km *Kmetric) GetTimeSequence(ctx context.Context, tags ...string) *TimeSequence {
	key := makeSequenceKey(tags...)
	if seq, ok := (*km.sequences.Load())[key]; ok {
		return seq
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	current := *km.sequences.Load()
	if seq, ok := current[key]; ok {
		return seq
	}
	next := make(map[string]*TimeSequence, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	seq := newTimeSequence(km, tags)
	next[key] = seq
	km.sequences.Store(&next)
	return seq
}

func (km *Kmetric) read(suffix string, pick func(*TimeSequence) int64) *metricdata.Metric {
	keys := make([]metricdata.LabelKey, len(km.tagNames))
	for i, tagName := range km.tagNames {
		keys[i] = metricdata.LabelKey{Key: tagName}
	}
	now := time.Now()
	timeSeries := []*metricdata.TimeSeries{}
	for _, ts := range *km.sequences.Load() {
		timeSeries = append(timeSeries, &metricdata.TimeSeries{
			LabelValues: ts.labelValues,
			Points:      []metricdata.Point{metricdata.NewInt64Point(now, pick(ts))},
			StartTime:   km.startTime,
		})
	}
	return &metricdata.Metric{
		Descriptor: metricdata.Descriptor{
			Name:        km.metricName + suffix,
			Description: km.description,
			Unit:        metricdata.UnitDimensionless,
			Type:        metricdata.TypeCumulativeInt64,
			LabelKeys:   keys,
		},
		Resource:   &resource.Resource{Type: resourceType, Labels: map[string]string{}},
		TimeSeries: timeSeries,
	}
}

func (km *Kmetric) ReadSum() *metricdata.Metric {
	return km.read("_sum", func(ts *TimeSequence) int64 { _, sum := ts.Get(); return sum })
}

func (km *Kmetric) ReadCount() *metricdata.Metric {
	return km.read("_count", func(ts *TimeSequence) int64 { count, _ := ts.Get(); return count })
}

// TimeSequence is one tag value combination of a Kmetric
type TimeSequence struct {
	tagValues   []string
	labelValues []metricdata.LabelValue
	count       int64
	sum         int64
}

func newTimeSequence(parent *Kmetric, tagValues []string) *TimeSequence {
	if len(tagValues) != len(parent.tagNames) {
		panic(kerror.Create("InvalidTagValues", "number of tag values does not match tag name list").
			With("metricName", parent.metricName).
			With("expectedLen", len(parent.tagNames)).
			With("gotLen", len(tagValues)))
	}
	values := make([]metricdata.LabelValue, len(tagValues))
	for i, item := range tagValues {
		values[i] = metricdata.NewLabelValue(item)
	}
	return &TimeSequence{
		tagValues:   tagValues,
		labelValues: values,
	}
}

func (ts *TimeSequence) Add(val int64) {
	atomic.AddInt64(&ts.count, 1)
	atomic.AddInt64(&ts.sum, val)
}

// Touch makes the sequence visible (as 0) before the first Add.
func (ts *TimeSequence) Touch() {}

func (ts *TimeSequence) Get() (count int64, sum int64) {
	return atomic.LoadInt64(&ts.count), atomic.LoadInt64(&ts.sum)
}
