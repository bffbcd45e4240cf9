package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mandersson1024/intonation-toy-sub003/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// metricSink collects metric events behind a mutex; the sampling loop
// publishes from its own goroutine.
type metricSink struct {
	mu      sync.Mutex
	metrics []events.PerformanceMetric
}

func (s *metricSink) add(e events.PerformanceMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, e)
}

func (s *metricSink) snapshot() []events.PerformanceMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.PerformanceMetric(nil), s.metrics...)
}

func newTestMonitor(t *testing.T, cpuPct, memPct float64) (*Monitor, *events.Bus) {
	t.Helper()

	bus := events.NewBus(events.Config{LaneCapacity: 64}, nil)
	m, err := New(Config{
		Interval:   5 * time.Millisecond,
		CPUWarnPct: 85,
		MemWarnPct: 90,
	}, bus)
	require.NoError(t, err)

	m.cpuPercent = func() (float64, error) { return cpuPct, nil }
	m.memPercent = func() (float64, error) { return memPct, nil }
	return m, bus
}

func TestMonitorPublishesResourceSamples(t *testing.T) {
	t.Parallel()

	m, bus := newTestMonitor(t, 42.5, 61.0)

	sink := &metricSink{}
	events.Subscribe(bus, sink.add)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool {
		bus.ProcessEvents()
		return len(sink.snapshot()) >= 2
	}, time.Second, time.Millisecond)

	var sawCPU, sawMem bool
	for _, e := range sink.snapshot() {
		switch e.Stage {
		case StageCPU:
			sawCPU = true
			assert.InDelta(t, 42.5, e.Value, 0.01)
			assert.InDelta(t, 85.0, e.Limit, 0.01)
			assert.Equal(t, "percent", e.Unit)
		case StageMemory:
			sawMem = true
			assert.InDelta(t, 61.0, e.Value, 0.01)
			assert.InDelta(t, 90.0, e.Limit, 0.01)
		}
	}
	assert.True(t, sawCPU)
	assert.True(t, sawMem)
}

func TestMonitorSkipsFailedSampler(t *testing.T) {
	t.Parallel()

	m, bus := newTestMonitor(t, 0, 33.0)
	m.cpuPercent = func() (float64, error) { return 0, errors.New("procfs unavailable") }

	sink := &metricSink{}
	events.Subscribe(bus, sink.add)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool {
		bus.ProcessEvents()
		return len(sink.snapshot()) >= 1
	}, time.Second, time.Millisecond)

	for _, e := range sink.snapshot() {
		assert.NotEqual(t, StageCPU, e.Stage, "failed sampler must not publish")
	}
}

func TestMonitorStartTwiceRejected(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, 1, 1)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Error(t, m.Start(context.Background()))
}

func TestMonitorStopIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, 1, 1)
	m.Stop() // never started

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
	m.Stop()
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	// Stop still waits for the loop; the cancelled context already ended it.
	m.Stop()
}

func TestMonitorConfigValidation(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(events.Config{}, nil)

	tests := []struct {
		name   string
		config Config
	}{
		{"zero interval", Config{CPUWarnPct: 85, MemWarnPct: 90}},
		{"cpu threshold over 100", Config{Interval: time.Second, CPUWarnPct: 150, MemWarnPct: 90}},
		{"zero memory threshold", Config{Interval: time.Second, CPUWarnPct: 85}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.config, bus)
			assert.Error(t, err)
		})
	}
}
