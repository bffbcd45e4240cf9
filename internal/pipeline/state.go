package pipeline

import (
	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// State is the coordinator lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateSuspended
	// StateStopped is terminal; all pooled storage is released on entry.
	StateStopped
)

// String returns the state name used in events, logs and metrics.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stateNames lists every state for the metrics state gauge.
var stateNames = []string{
	StateUninitialized.String(),
	StateInitializing.String(),
	StateRunning.String(),
	StateSuspended.String(),
	StateStopped.String(),
}

// validTransitions is the coordinator state machine. Stopped has no
// outgoing edges.
var validTransitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateRunning, StateStopped},
	StateRunning:       {StateSuspended, StateStopped},
	StateSuspended:     {StateRunning, StateStopped},
	StateStopped:       {},
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionError builds the rejection for an illegal edge.
func transitionError(from, to State) error {
	return errors.Newf("invalid pipeline transition %s -> %s", from, to).
		Component("pipeline").
		Category(errors.CategoryState).
		Context("from", from.String()).
		Context("to", to.String()).
		Build()
}

// CaptureState is a capture-boundary notification consumed as input to the
// state machine. The capture boundary itself is external.
type CaptureState int

const (
	CaptureStarted CaptureState = iota
	CaptureStopped
	CaptureDeviceChanged
)

// String returns the notification name.
func (c CaptureState) String() string {
	switch c {
	case CaptureStarted:
		return "started"
	case CaptureStopped:
		return "stopped"
	case CaptureDeviceChanged:
		return "device_changed"
	default:
		return "unknown"
	}
}
