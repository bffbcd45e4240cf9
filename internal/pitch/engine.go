package pitch

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mandersson1024/intonation-toy-sub003/internal/audio"
	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability/metrics"
)

// Weights combining periodicity strength and harmonic content into the
// confidence score.
const (
	periodicityWeight = 0.7
	harmonicWeight    = 0.3

	// autoMargin is the rolling-average difference below which Auto mode
	// treats the two variants as tied and falls back to the SNR estimate.
	autoMargin = 0.05

	// snrCleanDB is the SNR above which Auto prefers the cheaper
	// autocorrelation variant on a tie; below it YIN's normalization
	// handles the noise better.
	snrCleanDB = 20
)

// confidenceRing is a fixed-size rolling window of confidence scores.
type confidenceRing struct {
	values []float32
	next   int
	count  int
	sum    float64
}

func newConfidenceRing(size int) *confidenceRing {
	return &confidenceRing{values: make([]float32, size)}
}

func (r *confidenceRing) add(v float32) {
	if r.count == len(r.values) {
		r.sum -= float64(r.values[r.next])
	} else {
		r.count++
	}
	r.values[r.next] = v
	r.sum += float64(v)
	r.next = (r.next + 1) % len(r.values)
}

// average returns the rolling mean and whether any history exists.
func (r *confidenceRing) average() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.sum / float64(r.count), true
}

// Engine estimates pitch from buffer references. Detection itself is a
// pure function of the buffer contents and the current config; the only
// hidden state is the rolling confidence history consumed by Auto mode.
type Engine struct {
	mu      sync.Mutex
	config  Config
	history map[Algorithm]*confidenceRing

	spectral *spectral
	metrics  *metrics.PitchMetrics
	logger   *slog.Logger
}

// NewEngine creates a detection engine. m may be nil to disable
// instrumentation.
func NewEngine(config Config, m *metrics.PitchMetrics) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		config: config,
		history: map[Algorithm]*confidenceRing{
			AlgorithmAutocorrelation: newConfidenceRing(config.HistorySize),
			AlgorithmYIN:             newConfidenceRing(config.HistorySize),
		},
		spectral: newSpectral(),
		metrics:  m,
		logger:   logging.ForService("pitch"),
	}, nil
}

// Detect estimates the pitch of ref's contents. The algorithm variant is
// resolved once at entry, so a switch issued while a buffer is in flight
// takes effect on the next buffer and the Result always reports the
// variant that actually produced it.
func (e *Engine) Detect(ref *audio.BufferRef) Result {
	start := time.Now()
	meta := ref.Metadata()
	samples := ref.Data()

	e.mu.Lock()
	cfg := e.config
	e.mu.Unlock()

	mags := e.spectral.magnitudes(samples)
	snr := estimateSNR(mags)

	variant := cfg.Algorithm
	if variant == AlgorithmAuto {
		variant = e.resolveAuto(snr)
	}

	var raw rawEstimate
	switch variant {
	case AlgorithmYIN:
		raw = detectYIN(samples, meta.SampleRate, cfg)
	default:
		raw = detectAutocorrelation(samples, meta.SampleRate, cfg)
	}

	hc := harmonicContent(mags, meta.SampleRate, meta.Frames, raw.frequency)
	confidence := periodicityWeight*raw.periodicity + harmonicWeight*hc

	result := Result{
		Frequency:       raw.frequency,
		Confidence:      confidence,
		Clarity:         raw.clarity,
		HarmonicContent: hc,
		Algorithm:       variant,
		Timestamp:       start,
		Voiced:          true,
	}

	// A negative or NaN frequency, or a confidence below the inclusive
	// threshold, is no-pitch, never a low-confidence false positive.
	if result.Frequency <= 0 || math.IsNaN(result.Frequency) ||
		result.Frequency < cfg.MinFrequency || result.Frequency > cfg.MaxFrequency ||
		result.Confidence < cfg.ConfidenceThreshold {
		result.Frequency = 0
		result.Voiced = false
	}

	e.mu.Lock()
	e.history[variant].add(result.Confidence)
	e.mu.Unlock()

	result.ProcessingTime = time.Since(start)
	e.metrics.RecordDetection(variant.String(), result.Voiced, result.Confidence, result.ProcessingTime)
	return result
}

// resolveAuto picks the variant for this buffer: the higher rolling
// confidence average wins; near-ties fall back to the SNR estimate; with
// no history at all, autocorrelation is the default.
func (e *Engine) resolveAuto(snrDB float64) Algorithm {
	e.mu.Lock()
	avgA, okA := e.history[AlgorithmAutocorrelation].average()
	avgB, okB := e.history[AlgorithmYIN].average()
	e.mu.Unlock()

	if !okA && !okB {
		return AlgorithmAutocorrelation
	}
	if math.Abs(avgA-avgB) > autoMargin {
		if avgB > avgA {
			return AlgorithmYIN
		}
		return AlgorithmAutocorrelation
	}
	if snrDB >= snrCleanDB {
		return AlgorithmAutocorrelation
	}
	return AlgorithmYIN
}

// SwitchAlgorithm selects the active variant. It takes effect on the next
// buffer; an in-flight detection completes with the previous variant.
// Switching to the already-selected variant is a no-op and reports
// changed=false so callers emit no event for it.
func (e *Engine) SwitchAlgorithm(a Algorithm) (changed bool, err error) {
	if !a.valid() {
		return false, errors.Newf("unknown pitch algorithm %d", a).
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}

	e.mu.Lock()
	previous := e.config.Algorithm
	if previous == a {
		e.mu.Unlock()
		return false, nil
	}
	e.config.Algorithm = a
	e.mu.Unlock()

	e.metrics.RecordAlgorithmSwitch()
	e.logger.Info("algorithm switched",
		"previous", previous.String(),
		"current", a.String(),
	)
	return true, nil
}

// SetConfidenceThreshold updates the pass threshold, rejecting values
// outside [0,1] synchronously.
func (e *Engine) SetConfidenceThreshold(threshold float32) error {
	e.mu.Lock()
	candidate := e.config
	candidate.ConfidenceThreshold = threshold
	if err := candidate.Validate(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.config = candidate
	e.mu.Unlock()
	return nil
}

// Algorithm returns the currently selected variant, possibly Auto.
func (e *Engine) Algorithm() Algorithm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.Algorithm
}

// Configuration returns a copy of the current tunables.
func (e *Engine) Configuration() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}
