// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/streams:  total and streaming request counts
//   - upstream_errors:   failed upstream calls (transport or status)
//   - normalized:        replies where lead-in stripping changed content
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics collects operational counters.
type Metrics struct {
	startedAt time.Time

	requests       atomic.Int64
	streams        atomic.Int64
	upstreamErrors atomic.Int64
	normalized     atomic.Int64
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// RecordRequest counts a successfully forwarded request.
func (m *Metrics) RecordRequest(stream bool) {
	m.requests.Add(1)
	if stream {
		m.streams.Add(1)
	}
}

// RecordUpstreamError counts a failed upstream call.
func (m *Metrics) RecordUpstreamError() {
	m.upstreamErrors.Add(1)
}

// RecordNormalized counts a reply whose content was changed by the normalizer.
func (m *Metrics) RecordNormalized() {
	m.normalized.Add(1)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"uptime_seconds":  int64(time.Since(m.startedAt).Seconds()),
		"requests":        m.requests.Load(),
		"streams":         m.streams.Load(),
		"upstream_errors": m.upstreamErrors.Load(),
		"normalized":      m.normalized.Load(),
	}
}
