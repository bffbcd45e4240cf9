// Package pipeline wires capture quanta through pooled buffers, pitch
// detection and event emission, enforcing the end-to-end latency contract.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mandersson1024/intonation-toy-sub003/internal/audio"
	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
	"github.com/mandersson1024/intonation-toy-sub003/internal/events"
	"github.com/mandersson1024/intonation-toy-sub003/internal/latency"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability/metrics"
	"github.com/mandersson1024/intonation-toy-sub003/internal/pitch"
)

// Consumer receives a cloned buffer reference for every analysis frame.
// The consumer owns its clone and must release it; a panicking consumer is
// isolated and logged, never crashes the pipeline.
type Consumer interface {
	Name() string
	Consume(ref *audio.BufferRef)
}

// Config holds the coordinator configuration.
type Config struct {
	SampleRate uint32
	Channels   uint8
	// FrameSize is the analysis frame length in samples.
	FrameSize int
	// RingQuanta sizes the framer backlog in frames.
	RingQuanta int
}

// Validate rejects invalid coordinator configuration.
func (c Config) Validate() error {
	if c.SampleRate == 0 {
		return errors.Newf("sample rate must be positive").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.Channels == 0 {
		return errors.Newf("channel count must be positive").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.FrameSize <= 0 {
		return errors.Newf("frame size %d must be positive", c.FrameSize).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.RingQuanta <= 0 {
		return errors.Newf("ring capacity %d must be positive", c.RingQuanta).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Coordinator orchestrates the capture -> buffer -> detect -> emit flow.
// One producer goroutine (the capture callback) drives Ingest; Critical
// events are delivered synchronously on that goroutine and queued lanes
// are drained once per frame tick.
type Coordinator struct {
	mu    sync.Mutex
	state State

	config    Config
	pool      *audio.Pool
	bus       *events.Bus
	engine    *pitch.Engine
	latency   *latency.Monitor
	framer    *framer
	consumers []Consumer

	seq           uint64
	droppedFrames atomic.Uint64

	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

// New creates a coordinator. m may be nil to disable instrumentation.
func New(
	config Config,
	pool *audio.Pool,
	bus *events.Bus,
	engine *pitch.Engine,
	monitor *latency.Monitor,
	m *metrics.PipelineMetrics,
) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		state:   StateUninitialized,
		config:  config,
		pool:    pool,
		bus:     bus,
		engine:  engine,
		latency: monitor,
		framer:  newFramer(config.FrameSize, config.RingQuanta),
		metrics: m,
		logger:  logging.ForService("pipeline"),
	}
	m.SetState(c.state.String(), stateNames)
	return c, nil
}

// RegisterConsumer adds a buffer consumer. Registration before Start; the
// detection engine is not a Consumer, it is driven directly on the frame
// path.
func (c *Coordinator) RegisterConsumer(consumer Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized && c.state != StateInitializing {
		return transitionError(c.state, StateInitializing)
	}
	for _, existing := range c.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %q already registered", consumer.Name()).
				Component("pipeline").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	c.consumers = append(c.consumers, consumer)
	c.logger.Info("registered consumer", "consumer", consumer.Name())
	return nil
}

// Start transitions Uninitialized -> Initializing -> Running.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transitionLocked(StateInitializing); err != nil {
		return err
	}
	if err := c.transitionLocked(StateRunning); err != nil {
		return err
	}

	c.logger.Info("pipeline started",
		"sample_rate", c.config.SampleRate,
		"frame_size", c.config.FrameSize,
		"consumers", len(c.consumers),
	)
	return nil
}

// Ingest is called once per capture quantum with raw samples from the
// external capture boundary. The samples are copied once into the framer
// ring; whole frames are then moved once into pooled storage, the only
// copy into the pool. Ingest never blocks on I/O, never panics, and
// returns only after any Critical events produced by this quantum have
// been delivered.
func (c *Coordinator) Ingest(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		c.logger.Debug("ingest while not running, dropping quantum",
			"state", c.state.String(),
			"samples", len(samples),
		)
		c.metrics.RecordDroppedFrame(c.state.String())
		return
	}

	ingestStart := time.Now()
	if dropped := c.framer.push(samples); dropped > 0 {
		c.metrics.RecordDroppedFrame("ring_overflow")
		c.logger.Warn("framer ring overflow",
			"dropped_samples", dropped,
		)
	}

	for {
		frame, ok := c.framer.nextFrame()
		if !ok {
			break
		}
		c.processFrameLocked(frame, ingestStart)
		ingestStart = time.Now()
	}
}

// processFrameLocked runs one analysis frame through the full path and
// ticks the bus and the budget check. Per-frame failures are converted
// into events; only a pipeline-fatal error stops the pipeline.
func (c *Coordinator) processFrameLocked(frame []float32, ingestStart time.Time) {
	c.seq++
	meta := audio.Metadata{
		SampleRate: c.config.SampleRate,
		Channels:   c.config.Channels,
		Frames:     c.config.FrameSize,
		Timestamp:  ingestStart,
		Seq:        c.seq,
	}

	ref, err := c.pool.Acquire(c.config.FrameSize, meta)
	if err != nil {
		c.dropFrameLocked(err)
		c.tickLocked()
		return
	}
	if err := ref.Fill(frame); err != nil {
		_ = ref.Release()
		c.dropFrameLocked(err)
		c.tickLocked()
		return
	}
	ingestDone := time.Now()

	// Fan out by reference: one clone per consumer, zero data copies.
	for _, consumer := range c.consumers {
		clone, err := ref.Clone()
		if err != nil {
			c.logger.Error("clone for consumer failed",
				"consumer", consumer.Name(),
				"error", err,
			)
			continue
		}
		c.consumeSafe(consumer, clone)
	}

	result, detectErr := c.detectSafe(ref)
	detectDone := time.Now()

	if detectErr != nil {
		c.bus.Publish(events.ProcessingError{
			Stage:     string(latency.StageDetect),
			Message:   detectErr.Error(),
			Category:  string(errors.CategoryOf(detectErr)),
			Timestamp: detectDone,
		})
		c.logger.Error("detection failed, continuing with next frame",
			"seq", c.seq,
			"error", detectErr,
		)
	} else {
		// Critical: delivered to subscribers before Ingest returns.
		c.bus.Publish(events.PitchDetected{
			Frequency:       result.Frequency,
			Confidence:      result.Confidence,
			Clarity:         result.Clarity,
			HarmonicContent: result.HarmonicContent,
			Algorithm:       result.Algorithm.String(),
			ProcessingTime:  result.ProcessingTime,
			Timestamp:       result.Timestamp,
		})
	}
	publishDone := time.Now()

	if err := ref.Release(); err != nil {
		c.logger.Error("frame release failed", "seq", c.seq, "error", err)
	}

	c.latency.RecordStage(latency.StageIngest, ingestDone.Sub(ingestStart))
	c.latency.RecordStage(latency.StageDetect, detectDone.Sub(ingestDone))
	c.latency.RecordStage(latency.StagePublish, publishDone.Sub(detectDone))
	c.metrics.RecordStageLatency(string(latency.StageIngest), ingestDone.Sub(ingestStart))
	c.metrics.RecordStageLatency(string(latency.StageDetect), detectDone.Sub(ingestDone))
	c.metrics.RecordStageLatency(string(latency.StagePublish), publishDone.Sub(detectDone))
	c.metrics.RecordFrame()

	if errors.IsFatal(detectErr) {
		c.failLocked(detectErr)
		return
	}

	c.tickLocked()
}

// tickLocked drains the queued lanes and runs the budget check, once per
// frame.
func (c *Coordinator) tickLocked() {
	c.bus.ProcessEvents()
	compliance := c.latency.CheckBudget()
	if !compliance.WithinBudget {
		c.metrics.RecordBudgetViolation()
	}
}

// dropFrameLocked substitutes a dropped-frame marker for a frame the pool
// could not back: tally, warn, ProcessingError event. Never a panic out
// of Ingest.
func (c *Coordinator) dropFrameLocked(err error) {
	c.droppedFrames.Add(1)
	c.metrics.RecordDroppedFrame("pool_exhausted")
	c.logger.Warn("frame dropped",
		"seq", c.seq,
		"dropped_total", c.droppedFrames.Load(),
		"error", err,
	)
	c.bus.Publish(events.ProcessingError{
		Stage:     string(latency.StageIngest),
		Message:   err.Error(),
		Category:  string(errors.CategoryOf(err)),
		Timestamp: time.Now(),
	})
	if errors.IsFatal(err) {
		c.failLocked(err)
	}
}

// consumeSafe invokes one consumer with panic isolation. The consumer owns
// the clone; on panic the clone is released here so the refcount cannot
// leak.
func (c *Coordinator) consumeSafe(consumer Consumer, clone *audio.BufferRef) {
	defer func() {
		if r := recover(); r != nil {
			_ = clone.Release()
			c.logger.Error("consumer panicked",
				"consumer", consumer.Name(),
				"panic", r,
			)
		}
	}()
	consumer.Consume(clone)
}

// detectSafe runs detection inside a recover boundary so an engine panic
// surfaces as a detection error, not a pipeline crash.
func (c *Coordinator) detectSafe(ref *audio.BufferRef) (result pitch.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("detection panic: %v", r).
				Component("pipeline").
				Category(errors.CategoryDetection).
				Build()
		}
	}()
	result = c.engine.Detect(ref)
	return result, nil
}

// SwitchAlgorithm changes the detection variant at a frame boundary.
// Switching to the active variant is a no-op and emits nothing.
func (c *Coordinator) SwitchAlgorithm(a pitch.Algorithm) error {
	previous := c.engine.Algorithm()
	changed, err := c.engine.SwitchAlgorithm(a)
	if err != nil {
		return err
	}
	if changed {
		c.bus.Publish(events.StateChanged{
			Scope:     events.ScopeAlgorithm,
			Previous:  previous.String(),
			Current:   a.String(),
			Timestamp: time.Now(),
		})
	}
	return nil
}

// OnCaptureStateChanged consumes a capture-boundary notification and
// drives Running <-> Suspended.
func (c *Coordinator) OnCaptureStateChanged(cs CaptureState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cs {
	case CaptureStarted:
		if c.state == StateSuspended {
			_ = c.transitionLocked(StateRunning)
		}
	case CaptureStopped:
		if c.state == StateRunning {
			_ = c.transitionLocked(StateSuspended)
		}
	case CaptureDeviceChanged:
		c.bus.Publish(events.StateChanged{
			Scope:     events.ScopeCapture,
			Previous:  cs.String(),
			Current:   cs.String(),
			Timestamp: time.Now(),
		})
	}
}

// Stop drains buffered whole frames, releases pooled storage and
// transitions to the terminal Stopped state. Idempotent.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return nil
	}
	if !canTransition(c.state, StateStopped) {
		return transitionError(c.state, StateStopped)
	}

	// In-flight frames are processed to completion, not abandoned.
	for {
		frame, ok := c.framer.nextFrame()
		if !ok {
			break
		}
		c.processFrameLocked(frame, time.Now())
		if c.state == StateStopped {
			// A fatal error during the drain already finished the stop.
			return nil
		}
	}
	c.framer.reset()

	if err := c.transitionLocked(StateStopped); err != nil {
		return err
	}
	c.pool.Drain()
	c.tickLocked()
	c.logger.Info("pipeline stopped",
		"frames", c.seq,
		"dropped_frames", c.droppedFrames.Load(),
	)
	return nil
}

// failLocked handles a pipeline-fatal error: Critical event, then the
// terminal transition.
func (c *Coordinator) failLocked(err error) {
	c.logger.Error("fatal pipeline error, stopping", "error", err)
	c.bus.Publish(events.PipelineFatal{
		Component: "pipeline",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
	if canTransition(c.state, StateStopped) {
		_ = c.transitionLocked(StateStopped)
		c.pool.Drain()
	}
	c.tickLocked()
}

// transitionLocked performs one validated state machine edge and emits the
// StateChanged event.
func (c *Coordinator) transitionLocked(to State) error {
	if !canTransition(c.state, to) {
		return transitionError(c.state, to)
	}
	previous := c.state
	c.state = to

	c.metrics.SetState(to.String(), stateNames)
	c.logger.Info("pipeline state changed",
		"previous", previous.String(),
		"current", to.String(),
	)
	c.bus.Publish(events.StateChanged{
		Scope:     events.ScopePipeline,
		Previous:  previous.String(),
		Current:   to.String(),
		Timestamp: time.Now(),
	})
	return nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DroppedFrames returns the cumulative dropped-frame tally.
func (c *Coordinator) DroppedFrames() uint64 {
	return c.droppedFrames.Load()
}

// Stats summarizes coordinator counters for the CLI.
func (c *Coordinator) Stats() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("state=%s frames=%d dropped=%d pending_samples=%d",
		c.state, c.seq, c.droppedFrames.Load(), c.framer.pending())
}
