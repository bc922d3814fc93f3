package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates per-channel exchange counters in process memory.
type Metrics struct {
	mu sync.Mutex

	// Counters
	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	streamChunks  atomic.Int64

	// Per-channel metrics
	channelMetrics map[string]*ChannelMetrics
}

// ChannelMetrics represents counters for a single inbound channel.
type ChannelMetrics struct {
	exchangeCount atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		channelMetrics: make(map[string]*ChannelMetrics),
	}
}

// RecordExchange records a completed exchange on a channel.
func (m *Metrics) RecordExchange(channel string, duration time.Duration) {
	m.requestTotal.Add(1)
	cm := m.getChannelMetrics(channel)
	cm.exchangeCount.Add(1)
	cm.totalDuration.Add(duration.Milliseconds())
}

// RecordFailure records a failed exchange on a channel.
func (m *Metrics) RecordFailure(channel string) {
	m.requestTotal.Add(1)
	m.requestFailed.Add(1)
	cm := m.getChannelMetrics(channel)
	cm.exchangeCount.Add(1)
	cm.errorCount.Add(1)
}

// RecordStreamChunk records one stream record sent to a web client.
func (m *Metrics) RecordStreamChunk() {
	m.streamChunks.Add(1)
}

func (m *Metrics) getChannelMetrics(channel string) *ChannelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm, ok := m.channelMetrics[channel]
	if !ok {
		cm = &ChannelMetrics{}
		m.channelMetrics[channel] = cm
	}
	return cm
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make(map[string]*ChannelSnapshot, len(m.channelMetrics))
	for channel, cm := range m.channelMetrics {
		count := cm.exchangeCount.Load()
		snap := &ChannelSnapshot{
			ExchangeCount: count,
			ErrorCount:    cm.errorCount.Load(),
			TotalDuration: cm.totalDuration.Load(),
		}
		if count > 0 {
			snap.AverageDuration = snap.TotalDuration / count
		}
		channels[channel] = snap
	}

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		StreamChunks:  m.streamChunks.Load(),
		Channels:      channels,
	}
}

// MetricsSnapshot is a point-in-time view of the collector.
type MetricsSnapshot struct {
	RequestTotal  int64                       `json:"request_total"`
	RequestFailed int64                       `json:"request_failed"`
	StreamChunks  int64                       `json:"stream_chunks"`
	Channels      map[string]*ChannelSnapshot `json:"channels"`
}

// ChannelSnapshot holds the counters of one channel.
type ChannelSnapshot struct {
	ExchangeCount   int64 `json:"exchange_count"`
	ErrorCount      int64 `json:"error_count"`
	TotalDuration   int64 `json:"total_duration_ms"`
	AverageDuration int64 `json:"average_duration_ms"`
}

// SuccessRate returns the overall success rate as a percentage.
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
