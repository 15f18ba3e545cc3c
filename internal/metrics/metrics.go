package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter or histogram slot.
type MetricID uint16

const (
	MetricIssueSuccess MetricID = iota
	MetricIssueFailure
	MetricVerifySuccess
	MetricVerifyFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricStaleVersionRejected
	MetricDeviceMismatch
	MetricSessionCreated
	MetricSessionInvalidated
	MetricSessionSwept
	MetricLogout
	MetricLogoutAll
	MetricRateLimitHit
	MetricRateLimitReset
	MetricRateEntriesSwept
	MetricCSRFIssued
	MetricCSRFRejected
	MetricCSRFSwept
	MetricSuspiciousRequest
	MetricValidationRejected
	MetricVerifyLatency
	MetricIDCount
)

const (
	// HistBucketCount is the number of fixed histogram buckets.
	HistBucketCount = 8
	cacheLineSize   = 64
)

// bucketBounds are the inclusive upper bounds of all but the last bucket.
var bucketBounds = [HistBucketCount - 1]time.Duration{
	50 * time.Microsecond,
	100 * time.Microsecond,
	250 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	25 * time.Millisecond,
}

type histogram struct {
	buckets [HistBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config enables the metric store and its latency histogram.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Metrics stores counters and histograms. A nil *Metrics ignores writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time copy of every counter and enabled histogram.
// Histogram buckets are non-cumulative.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increases a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only MetricVerifyLatency keeps
// a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricVerifyLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[BucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if id == MetricVerifyLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, HistBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}
	return s
}

// BucketIndex returns the histogram bucket for d.
func BucketIndex(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d <= bound {
			return i
		}
	}
	return HistBucketCount - 1
}
