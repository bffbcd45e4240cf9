// Package runner assembles a full pipeline from configuration and drives
// it from a capture source until the source ends or a shutdown signal
// arrives.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mandersson1024/intonation-toy-sub003/internal/audio"
	"github.com/mandersson1024/intonation-toy-sub003/internal/conf"
	"github.com/mandersson1024/intonation-toy-sub003/internal/events"
	"github.com/mandersson1024/intonation-toy-sub003/internal/latency"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
	"github.com/mandersson1024/intonation-toy-sub003/internal/monitor"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability/metrics"
	"github.com/mandersson1024/intonation-toy-sub003/internal/pipeline"
	"github.com/mandersson1024/intonation-toy-sub003/internal/pitch"
	"github.com/mandersson1024/intonation-toy-sub003/internal/source"
)

// Options selects the capture source for a realtime run.
type Options struct {
	// WavPath replays a WAV file instead of the synthetic source.
	WavPath string
	// SineFrequency is the synthetic source frequency in Hz.
	SineFrequency float64
}

// Realtime builds the pipeline from settings, attaches a capture source
// and runs until the source ends or SIGINT/SIGTERM.
func Realtime(settings *conf.Settings, opts Options) error {
	logger := logging.ForService("runner")

	var registry *metrics.Registry
	if settings.Metrics.Enabled {
		var err error
		registry, err = metrics.NewRegistry()
		if err != nil {
			return err
		}
		endpoint := observability.NewEndpoint(settings.Metrics.Listen, registry)
		endpoint.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = endpoint.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics endpoint listening", "addr", settings.Metrics.Listen)
	}

	bus := events.NewBus(events.Config{
		LaneCapacity:  settings.Events.QueueCapacityPerLane,
		HandlerBudget: time.Duration(settings.Events.HandlerBudgetMs) * time.Millisecond,
	}, registry.BusMetricsOrNil())

	pool := audio.NewPool(audio.PoolConfig{
		MaxActive:    settings.Audio.PoolMaxActive,
		CeilingBytes: settings.Audio.PoolCeilingBytes,
	}, registry.AudioMetricsOrNil())

	algorithm, err := pitch.ParseAlgorithm(settings.Pitch.Algorithm)
	if err != nil {
		return err
	}
	engine, err := pitch.NewEngine(pitch.Config{
		Algorithm:           algorithm,
		ConfidenceThreshold: settings.Pitch.ConfidenceThreshold,
		MinFrequency:        settings.Pitch.MinFrequency,
		MaxFrequency:        settings.Pitch.MaxFrequency,
		HistorySize:         settings.Pitch.HistorySize,
	}, registry.PitchMetricsOrNil())
	if err != nil {
		return err
	}

	latencyMonitor, err := latency.NewMonitor(latency.Config{
		TargetLatency:       time.Duration(settings.Pipeline.TargetLatencyMs * float32(time.Millisecond)),
		WindowSize:          settings.Pipeline.LatencyWindowSize,
		EscalationThreshold: settings.Pipeline.EscalationThreshold,
		AlertSuppression:    time.Duration(settings.Pipeline.AlertSuppressionSec) * time.Second,
	}, bus)
	if err != nil {
		return err
	}

	src, err := buildSource(settings, opts)
	if err != nil {
		return err
	}

	coordinator, err := pipeline.New(pipeline.Config{
		SampleRate: src.Format().SampleRate,
		Channels:   src.Format().Channels,
		FrameSize:  settings.Audio.BufferSize,
		RingQuanta: settings.Audio.FramerRingQuanta,
	}, pool, bus, engine, latencyMonitor, registry.PipelineMetricsOrNil())
	if err != nil {
		return err
	}

	// Print detections as they happen; the Critical lane delivers these on
	// the ingest goroutine.
	events.Subscribe(bus, func(e events.PitchDetected) {
		if e.Frequency > 0 {
			fmt.Printf("%s  %8.2f Hz  confidence %.2f  clarity %.2f  [%s]\n",
				e.Timestamp.Format("15:04:05.000"), e.Frequency, e.Confidence, e.Clarity, e.Algorithm)
		}
	})
	events.Subscribe(bus, func(e events.PerformanceAlert) {
		logger.Warn("latency budget alert",
			"stage", e.Stage,
			"latency_ms", e.LatencyMs,
			"budget_ms", e.BudgetMs,
			"consecutive", e.Consecutive,
		)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if settings.Monitor.Enabled {
		resources, err := monitor.New(monitor.Config{
			Interval:   time.Duration(settings.Monitor.IntervalSec) * time.Second,
			CPUWarnPct: settings.Monitor.CPUWarnPct,
			MemWarnPct: settings.Monitor.MemWarnPct,
		}, bus)
		if err != nil {
			return err
		}
		if err := resources.Start(ctx); err != nil {
			return err
		}
		defer resources.Stop()
	}

	if err := coordinator.Start(); err != nil {
		return err
	}
	if err := src.Start(ctx, coordinator.Ingest); err != nil {
		_ = coordinator.Stop()
		return err
	}

	logger.Info("realtime run started",
		"sample_rate", src.Format().SampleRate,
		"frame_size", settings.Audio.BufferSize,
		"algorithm", settings.Pitch.Algorithm,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-src.Done():
		logger.Info("capture source finished")
	}

	src.Stop()
	if err := coordinator.Stop(); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, coordinator.Stats())
	return nil
}

// buildSource picks the capture source: a WAV replay when a path is given,
// otherwise the synthetic sine generator. Both are paced to real time.
func buildSource(settings *conf.Settings, opts Options) (source.Source, error) {
	if opts.WavPath != "" {
		return source.NewWavFileSource(source.WavConfig{
			Path:        opts.WavPath,
			QuantumSize: settings.Audio.BufferSize,
			Paced:       true,
		})
	}

	frequency := opts.SineFrequency
	if frequency <= 0 {
		frequency = 440
	}
	return source.NewSineSource(source.SineConfig{
		Frequency:   frequency,
		Amplitude:   0.8,
		SampleRate:  settings.Audio.SampleRate,
		QuantumSize: settings.Audio.BufferSize,
		Paced:       true,
	})
}
