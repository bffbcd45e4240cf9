// Package metrics provides Prometheus instrumentation for the audio core.
// All metric structs are nil-safe: a nil receiver makes every record call a
// no-op so components can be wired with or without observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AudioMetrics contains Prometheus metrics for buffer pool operations
type AudioMetrics struct {
	poolAcquiresTotal *prometheus.CounterVec
	poolReleasesTotal prometheus.Counter
	poolEvictionsTotal prometheus.Counter
	activeBuffersGauge prometheus.Gauge
	freeListBytesGauge prometheus.Gauge
}

// NewAudioMetrics creates and registers buffer pool metrics
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{
		poolAcquiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audio_pool_acquires_total",
				Help: "Buffer pool acquisitions by outcome (hit, miss, exhausted)",
			},
			[]string{"outcome"},
		),
		poolReleasesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audio_pool_releases_total",
				Help: "Buffers returned to the pool free list",
			},
		),
		poolEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audio_pool_evictions_total",
				Help: "Buffers released to the GC because the free-list ceiling was reached",
			},
		),
		activeBuffersGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "audio_pool_active_buffers",
				Help: "Buffers currently held outside the pool",
			},
		),
		freeListBytesGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "audio_pool_free_list_bytes",
				Help: "Bytes retained in the pool free lists",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.poolAcquiresTotal,
		m.poolReleasesTotal,
		m.poolEvictionsTotal,
		m.activeBuffersGauge,
		m.freeListBytesGauge,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordAcquire records a pool acquisition with its outcome
func (m *AudioMetrics) RecordAcquire(outcome string) {
	if m == nil {
		return
	}
	m.poolAcquiresTotal.WithLabelValues(outcome).Inc()
}

// RecordRelease records a buffer returning to the free list
func (m *AudioMetrics) RecordRelease() {
	if m == nil {
		return
	}
	m.poolReleasesTotal.Inc()
}

// RecordEviction records a block dropped past the memory ceiling
func (m *AudioMetrics) RecordEviction() {
	if m == nil {
		return
	}
	m.poolEvictionsTotal.Inc()
}

// SetActiveBuffers updates the active buffer gauge
func (m *AudioMetrics) SetActiveBuffers(n int) {
	if m == nil {
		return
	}
	m.activeBuffersGauge.Set(float64(n))
}

// SetFreeListBytes updates the free-list byte gauge
func (m *AudioMetrics) SetFreeListBytes(n int64) {
	if m == nil {
		return
	}
	m.freeListBytesGauge.Set(float64(n))
}
