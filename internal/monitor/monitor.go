// Package monitor samples host CPU and memory usage on an interval and
// publishes the samples as Low-priority performance metric events. It is
// started by the runner, never by the pipeline core.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
	"github.com/mandersson1024/intonation-toy-sub003/internal/events"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
)

// Resource stage labels used in published metric events.
const (
	StageCPU    = "cpu"
	StageMemory = "memory"
)

// Config holds the resource monitor tunables.
type Config struct {
	// Interval between samples.
	Interval time.Duration
	// CPUWarnPct logs a warning when total CPU usage exceeds it.
	CPUWarnPct float64
	// MemWarnPct logs a warning when memory usage exceeds it.
	MemWarnPct float64
}

// DefaultConfig returns the default monitor tunables.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Second,
		CPUWarnPct: 85,
		MemWarnPct: 90,
	}
}

// Validate rejects invalid tunables.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.Newf("sample interval %v must be positive", c.Interval).
			Component("monitor").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.CPUWarnPct <= 0 || c.CPUWarnPct > 100 {
		return errors.Newf("cpu warning threshold %.1f must be in (0,100]", c.CPUWarnPct).
			Component("monitor").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.MemWarnPct <= 0 || c.MemWarnPct > 100 {
		return errors.Newf("memory warning threshold %.1f must be in (0,100]", c.MemWarnPct).
			Component("monitor").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Monitor periodically samples host resources and publishes the samples on
// the bus.
type Monitor struct {
	config Config
	bus    *events.Bus
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Sampler indirection so tests run without touching the host.
	cpuPercent func() (float64, error)
	memPercent func() (float64, error)

	mu      sync.Mutex
	started bool
}

// New creates a resource monitor publishing to bus.
func New(config Config, bus *events.Bus) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Monitor{
		config:     config,
		bus:        bus,
		logger:     logging.ForService("monitor"),
		cpuPercent: sampleCPUPercent,
		memPercent: sampleMemPercent,
	}, nil
}

// Start launches the sampling loop. The loop stops when ctx is cancelled
// or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.Newf("resource monitor already started").
			Component("monitor").
			Category(errors.CategoryState).
			Build()
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)

	m.logger.Info("resource monitor started",
		"interval", m.config.Interval,
		"cpu_warn_pct", m.config.CPUWarnPct,
		"mem_warn_pct", m.config.MemWarnPct,
	)
	return nil
}

// Stop cancels the sampling loop and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.logger.Info("resource monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample takes one CPU and one memory reading and publishes both. Sampler
// failures are logged and skipped; the loop keeps running.
func (m *Monitor) sample() {
	now := time.Now()

	if pct, err := m.cpuPercent(); err != nil {
		m.logger.Error("cpu sample failed", "error", err)
	} else {
		m.publish(StageCPU, pct, m.config.CPUWarnPct, now)
	}

	if pct, err := m.memPercent(); err != nil {
		m.logger.Error("memory sample failed", "error", err)
	} else {
		m.publish(StageMemory, pct, m.config.MemWarnPct, now)
	}
}

func (m *Monitor) publish(stage string, value, limit float64, now time.Time) {
	if value > limit {
		m.logger.Warn("resource usage above threshold",
			"resource", stage,
			"usage_pct", value,
			"threshold_pct", limit,
		)
	}
	m.bus.Publish(events.PerformanceMetric{
		Stage:     stage,
		Value:     value,
		Limit:     limit,
		Unit:      "percent",
		Timestamp: now,
	})
}

// sampleCPUPercent returns total CPU usage since the previous call.
func sampleCPUPercent() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return 0, errors.New(err).
			Component("monitor").
			Category(errors.CategoryGeneric).
			Build()
	}
	if len(percentages) == 0 {
		return 0, nil
	}
	return percentages[0], nil
}

// sampleMemPercent returns the fraction of physical memory in use.
func sampleMemPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, errors.New(err).
			Component("monitor").
			Category(errors.CategoryGeneric).
			Build()
	}
	return vm.UsedPercent, nil
}
