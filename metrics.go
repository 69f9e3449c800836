package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter. IDs are dense so counters live in
// a fixed array with no map lookups on the hot path.
type MetricID uint16

const (
	// MetricVerifyValid counts pipeline runs ending in VerdictValid.
	MetricVerifyValid MetricID = iota
	// MetricVerifyInvalid counts pipeline runs ending in VerdictInvalid.
	MetricVerifyInvalid
	// MetricVerifyAccessExpired counts VerdictAccessExpired outcomes.
	MetricVerifyAccessExpired
	// MetricVerifyRefreshExpired counts VerdictRefreshExpired outcomes.
	MetricVerifyRefreshExpired
	// MetricClaimMismatchBurn counts defensive burns triggered by standard
	// claim mismatches.
	MetricClaimMismatchBurn
	// MetricReplayDetected counts revoked refresh tokens and blacklisted
	// access tokens presented after rotation or revocation.
	MetricReplayDetected
	// MetricRefreshUntracked counts refresh tokens with no store record.
	MetricRefreshUntracked
	// MetricInitialIssue counts IssueInitial calls that produced a pair.
	MetricInitialIssue
	// MetricRotation counts Rotate calls that produced a pair.
	MetricRotation
	// MetricRevoke counts RevokeCurrent invocations.
	MetricRevoke
	// MetricBackendUnavailable counts store or blacklist faults where the
	// request failed closed.
	MetricBackendUnavailable
	// MetricBurnIncomplete counts best-effort burns that could not complete.
	MetricBurnIncomplete
	// MetricVerifyLatency indexes the verify duration histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so concurrent
// increments from different cores do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's atomic counters. All methods are safe for
// concurrent use and are no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the verify latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter. A no-op when metrics are disabled.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a duration sample. Only MetricVerifyLatency has a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter atomically.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter under atomic loads. The result is
// internally consistent per counter, not across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
