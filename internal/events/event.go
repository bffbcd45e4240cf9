// Package events implements the priority event system of the audio core: a
// closed set of typed event kinds, a four-lane bounded priority queue, and
// a type-safe publish/subscribe bus. Critical events bypass the queue and
// are dispatched synchronously on the publisher's goroutine; all other
// lanes are drained once per processing tick.
package events

import (
	"time"
)

// Priority is one of the four event lanes. Lower values dispatch first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the lane name used in logs and metric labels.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Kind identifies an event type. Each kind is bound to exactly one payload
// type and one priority; priority derives from the kind, never from the
// publish call.
type Kind string

const (
	KindPitchDetected     Kind = "pitch_detected"
	KindPipelineFatal     Kind = "pipeline_fatal"
	KindStateChanged      Kind = "state_changed"
	KindProcessingError   Kind = "processing_error"
	KindPerformanceAlert  Kind = "performance_alert"
	KindPerformanceMetric Kind = "performance_metric"
	KindQueueOverflow     Kind = "queue_overflow"
)

// Scopes for StateChanged events.
const (
	ScopePipeline  = "pipeline"
	ScopeCapture   = "capture"
	ScopeAlgorithm = "algorithm"
)

// Event is implemented by every payload type in the closed kind set.
type Event interface {
	EventKind() Kind
	EventPriority() Priority
	OccurredAt() time.Time
}

// PitchDetected reports one detection result. Critical: delivered to
// subscribers before the ingest call that produced it returns.
type PitchDetected struct {
	Frequency       float64
	Confidence      float32
	Clarity         float32
	HarmonicContent float32
	Algorithm       string
	ProcessingTime  time.Duration
	Timestamp       time.Time
}

func (PitchDetected) EventKind() Kind { return KindPitchDetected }
func (PitchDetected) EventPriority() Priority { return PriorityCritical }
func (e PitchDetected) OccurredAt() time.Time { return e.Timestamp }

// PipelineFatal reports an unrecoverable pipeline error. Critical so an
// operator layer observes it before the pipeline halts.
type PipelineFatal struct {
	Component string
	Message   string
	Timestamp time.Time
}

func (PipelineFatal) EventKind() Kind { return KindPipelineFatal }
func (PipelineFatal) EventPriority() Priority { return PriorityCritical }
func (e PipelineFatal) OccurredAt() time.Time { return e.Timestamp }

// StateChanged reports a pipeline, capture or algorithm state transition.
type StateChanged struct {
	Scope     string
	Previous  string
	Current   string
	Timestamp time.Time
}

func (StateChanged) EventKind() Kind { return KindStateChanged }
func (StateChanged) EventPriority() Priority { return PriorityHigh }
func (e StateChanged) OccurredAt() time.Time { return e.Timestamp }

// ProcessingError reports a contained per-frame failure. The pipeline
// continues with the next buffer.
type ProcessingError struct {
	Stage     string
	Message   string
	Category  string
	Timestamp time.Time
}

func (ProcessingError) EventKind() Kind { return KindProcessingError }
func (ProcessingError) EventPriority() Priority { return PriorityHigh }
func (e ProcessingError) OccurredAt() time.Time { return e.Timestamp }

// PerformanceAlert reports a sustained latency budget violation.
type PerformanceAlert struct {
	Stage       string
	LatencyMs   float32
	BudgetMs    float32
	Consecutive int
	Timestamp   time.Time
}

func (PerformanceAlert) EventKind() Kind { return KindPerformanceAlert }
func (PerformanceAlert) EventPriority() Priority { return PriorityHigh }
func (e PerformanceAlert) OccurredAt() time.Time { return e.Timestamp }

// PerformanceMetric reports a latency or host-resource sample. Unit names
// the measurement ("ms", "percent"); Limit is the configured budget or
// threshold the sample is compared against.
type PerformanceMetric struct {
	Stage     string
	Value     float64
	Limit     float64
	Unit      string
	Timestamp time.Time
}

func (PerformanceMetric) EventKind() Kind { return KindPerformanceMetric }
func (PerformanceMetric) EventPriority() Priority { return PriorityLow }
func (e PerformanceMetric) OccurredAt() time.Time { return e.Timestamp }

// QueueOverflow is the internal diagnostic emitted once per lane per tick
// when events were evicted from a full lane.
type QueueOverflow struct {
	Lane      Priority
	Evicted   int
	Timestamp time.Time
}

func (QueueOverflow) EventKind() Kind { return KindQueueOverflow }
func (QueueOverflow) EventPriority() Priority { return PriorityLow }
func (e QueueOverflow) OccurredAt() time.Time { return e.Timestamp }
