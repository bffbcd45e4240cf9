// Package pitch estimates fundamental frequency and confidence from
// pooled audio buffers, with run-time algorithm selection between a
// time-domain autocorrelation estimator and a YIN estimator with
// sub-sample interpolation.
package pitch

import (
	"time"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// Algorithm selects the detection variant.
type Algorithm int

const (
	// AlgorithmAutocorrelation is the time-domain normalized
	// autocorrelation estimator with integer-lag peak picking.
	AlgorithmAutocorrelation Algorithm = iota
	// AlgorithmYIN is the refined periodicity estimator: cumulative mean
	// normalized difference with parabolic sub-sample interpolation.
	AlgorithmYIN
	// AlgorithmAuto selects per buffer from the estimated SNR and the
	// rolling confidence history of each variant.
	AlgorithmAuto
)

// String returns the config-file name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmAutocorrelation:
		return "autocorrelation"
	case AlgorithmYIN:
		return "yin"
	case AlgorithmAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseAlgorithm converts a config-file name into an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "autocorrelation":
		return AlgorithmAutocorrelation, nil
	case "yin":
		return AlgorithmYIN, nil
	case "auto":
		return AlgorithmAuto, nil
	default:
		return AlgorithmAuto, errors.Newf("unknown pitch algorithm %q", name).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// valid reports whether a is a known variant.
func (a Algorithm) valid() bool {
	switch a {
	case AlgorithmAutocorrelation, AlgorithmYIN, AlgorithmAuto:
		return true
	default:
		return false
	}
}

// Config holds the detection tunables.
type Config struct {
	// Algorithm is the selected variant, possibly Auto.
	Algorithm Algorithm
	// ConfidenceThreshold is the inclusive pass threshold in [0,1]:
	// a result with confidence exactly at the threshold is voiced.
	ConfidenceThreshold float32
	// MinFrequency and MaxFrequency bound the search range in Hz.
	MinFrequency float64
	MaxFrequency float64
	// HistorySize is the number of recent results kept per variant for
	// Auto selection.
	HistorySize int
}

// DefaultConfig returns the default detection tunables.
func DefaultConfig() Config {
	return Config{
		Algorithm:           AlgorithmAuto,
		ConfidenceThreshold: 0.6,
		MinFrequency:        60,
		MaxFrequency:        1600,
		HistorySize:         16,
	}
}

// Validate rejects invalid tunables with configuration errors. Values are
// never clamped.
func (c Config) Validate() error {
	if !c.Algorithm.valid() {
		return errors.Newf("unknown pitch algorithm %d", c.Algorithm).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Newf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.MinFrequency <= 0 {
		return errors.Newf("minimum frequency %v must be positive", c.MinFrequency).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.MaxFrequency <= c.MinFrequency {
		return errors.Newf("maximum frequency %v must exceed minimum %v", c.MaxFrequency, c.MinFrequency).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.HistorySize <= 0 {
		return errors.Newf("history size %d must be positive", c.HistorySize).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Result is one detection outcome. An unvoiced result carries frequency
// zero and keeps the measured confidence so consumers can distinguish "no
// clear pitch" from a broken pipeline.
type Result struct {
	Frequency       float64
	Confidence      float32
	Clarity         float32
	HarmonicContent float32
	Algorithm       Algorithm
	ProcessingTime  time.Duration
	Timestamp       time.Time
	Voiced          bool
}
