package authkit

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupRejected
	MetricSignupDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginUnknownUser
	MetricAccountLocked
	MetricLoginWhileLocked
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionRenewed
	MetricSessionExpired
	MetricSessionFingerprintMismatch
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordRehash
	MetricInjectionAttempt
	MetricStoreFailure
	// MetricLoginLatency is the only histogram and must stay after every
	// counter.
	MetricLoginLatency
)

// HistogramBounds label the login latency buckets in seconds. They span a
// successful PBKDF2 verification at the low end and the failed-login delay
// window at the high end; the last bucket is unbounded.
var HistogramBounds = [histBucketCount]string{"0.05", "0.1", "0.25", "0.5", "1", "1.5", "2.5", "+Inf"}

// latencyBounds are HistogramBounds as durations, without +Inf.
var latencyBounds = [histBucketCount - 1]time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	1500 * time.Millisecond,
	2500 * time.Millisecond,
}

const histBucketCount = 8

// counter is padded to a 64-byte cache line.
type counter struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds the engine counters and the login latency histogram. A nil
// or disabled Metrics ignores every update.
type Metrics struct {
	enabled  bool
	counters [MetricLoginLatency]counter
	latency  [histBucketCount]atomic.Uint64
	// latencySum is the total observed login time in nanoseconds.
	latencySum atomic.Int64
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are per-bucket
// counts, not cumulative; Sums holds each histogram's total observed time.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricLoginLatency {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records one login duration. Only MetricLoginLatency is a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.Enabled() || id != MetricLoginLatency {
		return
	}
	m.latency[latencyBucket(d)].Add(1)
	m.latencySum.Add(int64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricLoginLatency {
		return 0
	}
	return m.counters[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		Sums:       map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return snap
	}
	for id := MetricID(0); id < MetricLoginLatency; id++ {
		snap.Counters[id] = m.counters[id].n.Load()
	}
	buckets := make([]uint64, histBucketCount)
	for i := range m.latency {
		buckets[i] = m.latency[i].Load()
	}
	snap.Histograms[MetricLoginLatency] = buckets
	snap.Sums[MetricLoginLatency] = time.Duration(m.latencySum.Load())
	return snap
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
