package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PitchMetrics contains Prometheus metrics for the detection engine
type PitchMetrics struct {
	detectionsTotal   *prometheus.CounterVec
	detectDuration    *prometheus.HistogramVec
	confidenceHist    prometheus.Histogram
	algorithmSwitches prometheus.Counter
}

// NewPitchMetrics creates and registers pitch detection metrics
func NewPitchMetrics(registry *prometheus.Registry) (*PitchMetrics, error) {
	m := &PitchMetrics{
		detectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitch_detections_total",
				Help: "Detection results by algorithm and voiced outcome",
			},
			[]string{"algorithm", "voiced"},
		),
		detectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitch_detect_duration_seconds",
				Help:    "Per-buffer detection duration by algorithm",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"algorithm"},
		),
		confidenceHist: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pitch_confidence",
				Help:    "Confidence distribution of voiced detections",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		algorithmSwitches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pitch_algorithm_switches_total",
				Help: "Runtime algorithm switches that changed the active variant",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.detectionsTotal,
		m.detectDuration,
		m.confidenceHist,
		m.algorithmSwitches,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordDetection records one detection result
func (m *PitchMetrics) RecordDetection(algorithm string, voiced bool, confidence float32, d time.Duration) {
	if m == nil {
		return
	}
	voicedLabel := "false"
	if voiced {
		voicedLabel = "true"
		m.confidenceHist.Observe(float64(confidence))
	}
	m.detectionsTotal.WithLabelValues(algorithm, voicedLabel).Inc()
	m.detectDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

// RecordAlgorithmSwitch records an effective algorithm change
func (m *PitchMetrics) RecordAlgorithmSwitch() {
	if m == nil {
		return
	}
	m.algorithmSwitches.Inc()
}
