package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the coordinator
type PipelineMetrics struct {
	framesTotal       prometheus.Counter
	framesDropped     *prometheus.CounterVec
	stageLatencyGauge *prometheus.GaugeVec
	budgetViolations  prometheus.Counter
	stateGauge        *prometheus.GaugeVec
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		framesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_frames_total",
				Help: "Analysis frames processed end to end",
			},
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_frames_dropped_total",
				Help: "Frames dropped by cause (pool_exhausted, ring_overflow, stopped)",
			},
			[]string{"cause"},
		),
		stageLatencyGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_stage_latency_seconds",
				Help: "Most recent latency per pipeline stage",
			},
			[]string{"stage"},
		),
		budgetViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_budget_violations_total",
				Help: "Ticks whose aggregate latency exceeded the target budget",
			},
		),
		stateGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_state",
				Help: "Pipeline state indicator (1 for the current state)",
			},
			[]string{"state"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.framesTotal,
		m.framesDropped,
		m.stageLatencyGauge,
		m.budgetViolations,
		m.stateGauge,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordFrame records one fully processed frame
func (m *PipelineMetrics) RecordFrame() {
	if m == nil {
		return
	}
	m.framesTotal.Inc()
}

// RecordDroppedFrame records a dropped frame with its cause
func (m *PipelineMetrics) RecordDroppedFrame(cause string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(cause).Inc()
}

// RecordStageLatency records the most recent stage latency
func (m *PipelineMetrics) RecordStageLatency(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageLatencyGauge.WithLabelValues(stage).Set(d.Seconds())
}

// RecordBudgetViolation records an over-budget tick
func (m *PipelineMetrics) RecordBudgetViolation() {
	if m == nil {
		return
	}
	m.budgetViolations.Inc()
}

// SetState marks state as the current pipeline state
func (m *PipelineMetrics) SetState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.stateGauge.WithLabelValues(s).Set(v)
	}
}
