// Package latency aggregates per-stage pipeline timings and checks them
// against the end-to-end latency budget. The monitor is purely
// observational: it publishes metric and alert events but never mutates
// pipeline behavior; corrective action belongs to whoever subscribes.
package latency

import (
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
	"github.com/mandersson1024/intonation-toy-sub003/internal/events"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
)

// Stage identifies one timed pipeline stage.
type Stage string

const (
	StageIngest  Stage = "ingest"
	StageDetect  Stage = "detect"
	StagePublish Stage = "publish"
)

// frameStages are the stages summed into the aggregate frame-path latency.
var frameStages = []Stage{StageIngest, StageDetect, StagePublish}

// aggregateStage labels aggregate budget events.
const aggregateStage = "aggregate"

// Config holds the monitor tunables.
type Config struct {
	// TargetLatency is the end-to-end budget.
	TargetLatency time.Duration
	// WindowSize is the number of samples in each per-stage rolling window.
	WindowSize int
	// EscalationThreshold is the number of consecutive over-budget ticks
	// before a High-priority alert, which fires on the Nth tick, not the
	// first.
	EscalationThreshold int
	// AlertSuppression is how long repeated High alerts for the same stage
	// are suppressed while a violation persists.
	AlertSuppression time.Duration
}

// DefaultConfig returns the default monitor tunables.
func DefaultConfig() Config {
	return Config{
		TargetLatency:       50 * time.Millisecond,
		WindowSize:          128,
		EscalationThreshold: 3,
		AlertSuppression:    30 * time.Second,
	}
}

// Validate rejects invalid tunables.
func (c Config) Validate() error {
	if c.TargetLatency <= 0 {
		return errors.Newf("target latency %v must be positive", c.TargetLatency).
			Component("latency").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.WindowSize <= 0 {
		return errors.Newf("window size %d must be positive", c.WindowSize).
			Component("latency").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.EscalationThreshold <= 0 {
		return errors.Newf("escalation threshold %d must be positive", c.EscalationThreshold).
			Component("latency").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// StageStats is a snapshot of one stage's rolling window.
type StageStats struct {
	Mean  time.Duration
	Max   time.Duration
	Last  time.Duration
	Count int
}

// Compliance is the outcome of one budget check.
type Compliance struct {
	WithinBudget bool
	Aggregate    time.Duration
	Budget       time.Duration
	// Consecutive is the current streak of over-budget ticks.
	Consecutive int
}

// window is a fixed-size ring of stage durations.
type window struct {
	values []time.Duration
	next   int
	count  int
	sum    time.Duration
	max    time.Duration
	last   time.Duration
}

func (w *window) record(d time.Duration) {
	if w.count == len(w.values) {
		w.sum -= w.values[w.next]
	} else {
		w.count++
	}
	w.values[w.next] = d
	w.sum += d
	w.next = (w.next + 1) % len(w.values)
	w.last = d
	// Max is tracked over the whole run, not the window; good enough for
	// spotting worst-case spikes without rescanning the ring.
	if d > w.max {
		w.max = d
	}
}

func (w *window) stats() StageStats {
	s := StageStats{Max: w.max, Last: w.last, Count: w.count}
	if w.count > 0 {
		s.Mean = w.sum / time.Duration(w.count)
	}
	return s
}

// Monitor accumulates per-stage rolling statistics and raises budget
// events on the bus.
type Monitor struct {
	mu       sync.Mutex
	stages   map[Stage]*window
	streak   int
	config   Config
	bus      *events.Bus
	suppress *gocache.Cache
	logger   *slog.Logger
}

// NewMonitor creates a latency monitor publishing to bus.
func NewMonitor(config Config, bus *events.Bus) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.AlertSuppression <= 0 {
		config.AlertSuppression = DefaultConfig().AlertSuppression
	}

	return &Monitor{
		stages:   make(map[Stage]*window),
		config:   config,
		bus:      bus,
		suppress: gocache.New(config.AlertSuppression, time.Minute),
		logger:   logging.ForService("latency"),
	}, nil
}

// RecordStage adds one stage timing sample to its rolling window.
func (m *Monitor) RecordStage(stage Stage, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.stages[stage]
	if !ok {
		w = &window{values: make([]time.Duration, m.config.WindowSize)}
		m.stages[stage] = w
	}
	w.record(d)
}

// CheckBudget compares the aggregate frame-path latency against the
// target. Every over-budget tick publishes a Low-priority metric event;
// EscalationThreshold consecutive over-budget ticks escalate once to a
// High-priority alert, TTL-suppressed while the violation persists.
// Recovery resets both the streak and the suppression.
func (m *Monitor) CheckBudget() Compliance {
	m.mu.Lock()
	var aggregate time.Duration
	for _, stage := range frameStages {
		if w, ok := m.stages[stage]; ok && w.count > 0 {
			aggregate += w.sum / time.Duration(w.count)
		}
	}

	within := aggregate <= m.config.TargetLatency
	if within {
		if m.streak > 0 {
			m.suppress.Delete(aggregateStage)
		}
		m.streak = 0
	} else {
		m.streak++
	}
	streak := m.streak
	m.mu.Unlock()

	compliance := Compliance{
		WithinBudget: within,
		Aggregate:    aggregate,
		Budget:       m.config.TargetLatency,
		Consecutive:  streak,
	}
	if within {
		return compliance
	}

	now := time.Now()
	latencyMs := float32(aggregate.Seconds() * 1000)
	budgetMs := float32(m.config.TargetLatency.Seconds() * 1000)

	m.bus.Publish(events.PerformanceMetric{
		Stage:     aggregateStage,
		Value:     float64(latencyMs),
		Limit:     float64(budgetMs),
		Unit:      "ms",
		Timestamp: now,
	})

	if streak >= m.config.EscalationThreshold {
		if _, suppressed := m.suppress.Get(aggregateStage); !suppressed {
			m.suppress.SetDefault(aggregateStage, struct{}{})
			m.logger.Warn("latency budget violated",
				"aggregate_ms", latencyMs,
				"budget_ms", budgetMs,
				"consecutive", streak,
			)
			m.bus.Publish(events.PerformanceAlert{
				Stage:       aggregateStage,
				LatencyMs:   latencyMs,
				BudgetMs:    budgetMs,
				Consecutive: streak,
				Timestamp:   now,
			})
		}
	}

	return compliance
}

// StageStats returns a snapshot for one stage.
func (m *Monitor) StageStats(stage Stage) StageStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.stages[stage]; ok {
		return w.stats()
	}
	return StageStats{}
}

// Aggregate returns the current frame-path aggregate latency.
func (m *Monitor) Aggregate() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var aggregate time.Duration
	for _, stage := range frameStages {
		if w, ok := m.stages[stage]; ok && w.count > 0 {
			aggregate += w.sum / time.Duration(w.count)
		}
	}
	return aggregate
}
