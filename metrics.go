package gatekit

import "sync/atomic"

// MetricID indexes the engine's counter table.
type MetricID uint16

const (
	MetricRecoveryRequest MetricID = iota
	MetricRecoveryRequestDenied
	MetricRecoveryVerifySuccess
	MetricRecoveryVerifyFailure
	MetricRecoveryConfirmSuccess
	MetricRecoveryConfirmFailure
	MetricRateLimitHit
	MetricIPBlocked
	MetricOTPExhausted
	MetricTokenIssued
	MetricTokenRejected
	MetricStoreError
	metricIDCount
)

const cacheLineSize = 64

// paddedCounter keeps hot counters on separate cache lines so
// concurrent increments of different metrics don't false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed table of lock-free counters. A nil or disabled
// Metrics accepts increments as no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics builds the counter table.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
