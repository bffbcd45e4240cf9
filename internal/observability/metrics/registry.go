package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry bundles all metric groups behind one prometheus registry.
// A nil *Registry is valid and disables all instrumentation.
type Registry struct {
	registry *prometheus.Registry

	Audio    *AudioMetrics
	Bus      *BusMetrics
	Pitch    *PitchMetrics
	Pipeline *PipelineMetrics
}

// NewRegistry creates a registry with all metric groups registered,
// plus the standard Go runtime and process collectors.
func NewRegistry() (*Registry, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	audio, err := NewAudioMetrics(reg)
	if err != nil {
		return nil, err
	}
	bus, err := NewBusMetrics(reg)
	if err != nil {
		return nil, err
	}
	pitch, err := NewPitchMetrics(reg)
	if err != nil {
		return nil, err
	}
	pipeline, err := NewPipelineMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Registry{
		registry: reg,
		Audio:    audio,
		Bus:      bus,
		Pitch:    pitch,
		Pipeline: pipeline,
	}, nil
}

// Prometheus returns the underlying prometheus registry, or nil for a
// disabled Registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// AudioMetricsOrNil returns the audio metrics group, nil-safe.
func (r *Registry) AudioMetricsOrNil() *AudioMetrics {
	if r == nil {
		return nil
	}
	return r.Audio
}

// BusMetricsOrNil returns the bus metrics group, nil-safe.
func (r *Registry) BusMetricsOrNil() *BusMetrics {
	if r == nil {
		return nil
	}
	return r.Bus
}

// PitchMetricsOrNil returns the pitch metrics group, nil-safe.
func (r *Registry) PitchMetricsOrNil() *PitchMetrics {
	if r == nil {
		return nil
	}
	return r.Pitch
}

// PipelineMetricsOrNil returns the pipeline metrics group, nil-safe.
func (r *Registry) PipelineMetricsOrNil() *PipelineMetrics {
	if r == nil {
		return nil
	}
	return r.Pipeline
}
