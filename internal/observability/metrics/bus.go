package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusMetrics contains Prometheus metrics for the priority event bus
type BusMetrics struct {
	publishedTotal  *prometheus.CounterVec
	dispatchedTotal *prometheus.CounterVec
	evictedTotal    *prometheus.CounterVec
	handlerTimeouts prometheus.Counter
	handlerPanics   prometheus.Counter
	laneDepthGauge  *prometheus.GaugeVec
}

// NewBusMetrics creates and registers event bus metrics
func NewBusMetrics(registry *prometheus.Registry) (*BusMetrics, error) {
	m := &BusMetrics{
		publishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Events published by priority lane",
			},
			[]string{"priority"},
		),
		dispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_dispatched_total",
				Help: "Handler invocations by priority lane",
			},
			[]string{"priority"},
		),
		evictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_evicted_total",
				Help: "Events evicted from full lanes",
			},
			[]string{"priority"},
		),
		handlerTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_handler_timeouts_total",
				Help: "Handlers abandoned after exceeding the time budget",
			},
		),
		handlerPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_handler_panics_total",
				Help: "Handler panics recovered during dispatch",
			},
		),
		laneDepthGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "events_lane_depth",
				Help: "Events waiting in each lane at the last drain",
			},
			[]string{"priority"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.publishedTotal,
		m.dispatchedTotal,
		m.evictedTotal,
		m.handlerTimeouts,
		m.handlerPanics,
		m.laneDepthGauge,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordPublished records a published event
func (m *BusMetrics) RecordPublished(priority string) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(priority).Inc()
}

// RecordDispatched records a handler invocation
func (m *BusMetrics) RecordDispatched(priority string) {
	if m == nil {
		return
	}
	m.dispatchedTotal.WithLabelValues(priority).Inc()
}

// RecordEvicted records a lane eviction
func (m *BusMetrics) RecordEvicted(priority string) {
	if m == nil {
		return
	}
	m.evictedTotal.WithLabelValues(priority).Inc()
}

// RecordHandlerTimeout records an abandoned handler
func (m *BusMetrics) RecordHandlerTimeout() {
	if m == nil {
		return
	}
	m.handlerTimeouts.Inc()
}

// RecordHandlerPanic records a recovered handler panic
func (m *BusMetrics) RecordHandlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

// SetLaneDepth updates the lane depth gauge
func (m *BusMetrics) SetLaneDepth(priority string, depth int) {
	if m == nil {
		return
	}
	m.laneDepthGauge.WithLabelValues(priority).Set(float64(depth))
}
