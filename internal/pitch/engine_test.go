package pitch

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandersson1024/intonation-toy-sub003/internal/audio"
	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

const (
	testSampleRate = 44100
	testFrames     = 1024
)

// sineBuffer fills a pooled buffer with a pure sine at freq Hz.
func sineBuffer(t *testing.T, pool *audio.Pool, freq float64) *audio.BufferRef {
	t.Helper()

	samples := make([]float32, testFrames)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / testSampleRate))
	}
	return fillBuffer(t, pool, samples)
}

func fillBuffer(t *testing.T, pool *audio.Pool, samples []float32) *audio.BufferRef {
	t.Helper()

	ref, err := pool.Acquire(len(samples), audio.Metadata{
		SampleRate: testSampleRate,
		Channels:   1,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, ref.Fill(samples))
	return ref
}

func newTestEngine(t *testing.T, algorithm Algorithm) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Algorithm = algorithm
	engine, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return engine
}

func TestDetect440Sine(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)

	for _, algorithm := range []Algorithm{AlgorithmAutocorrelation, AlgorithmYIN} {
		t.Run(algorithm.String(), func(t *testing.T) {
			engine := newTestEngine(t, algorithm)
			ref := sineBuffer(t, pool, 440)
			defer func() { require.NoError(t, ref.Release()) }()

			result := engine.Detect(ref)

			assert.True(t, result.Voiced)
			assert.InDelta(t, 440.0, result.Frequency, 2.0)
			assert.Greater(t, result.Confidence, float32(0.8))
			assert.Equal(t, algorithm, result.Algorithm)
			assert.Positive(t, result.ProcessingTime)
		})
	}
}

func TestDetectSilenceIsUnvoiced(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)
	engine := newTestEngine(t, AlgorithmAutocorrelation)

	ref := fillBuffer(t, pool, make([]float32, testFrames))
	defer func() { require.NoError(t, ref.Release()) }()

	result := engine.Detect(ref)
	assert.False(t, result.Voiced)
	assert.Zero(t, result.Frequency)
}

func TestDetectNoiseIsUnvoiced(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)
	engine := newTestEngine(t, AlgorithmAutocorrelation)

	rng := rand.New(rand.NewSource(1))
	samples := make([]float32, testFrames)
	for i := range samples {
		samples[i] = rng.Float32()*2 - 1
	}
	ref := fillBuffer(t, pool, samples)
	defer func() { require.NoError(t, ref.Release()) }()

	result := engine.Detect(ref)
	assert.False(t, result.Voiced)
	assert.Zero(t, result.Frequency)
}

func TestConfidenceThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)

	// Measure the deterministic confidence of this buffer first.
	probe := newTestEngine(t, AlgorithmYIN)
	probeCfg := probe.Configuration()
	probeCfg.ConfidenceThreshold = 0
	probeEngine, err := NewEngine(probeCfg, nil)
	require.NoError(t, err)

	ref := sineBuffer(t, pool, 330)
	defer func() { require.NoError(t, ref.Release()) }()

	measured := probeEngine.Detect(ref).Confidence
	require.Greater(t, measured, float32(0))
	require.Less(t, measured, float32(1))

	// Exactly at the threshold passes.
	atCfg := probeCfg
	atCfg.ConfidenceThreshold = measured
	atEngine, err := NewEngine(atCfg, nil)
	require.NoError(t, err)
	assert.True(t, atEngine.Detect(ref).Voiced)

	// One ULP above the threshold is rejected.
	aboveCfg := probeCfg
	aboveCfg.ConfidenceThreshold = math.Nextafter32(measured, 2)
	aboveEngine, err := NewEngine(aboveCfg, nil)
	require.NoError(t, err)
	result := aboveEngine.Detect(ref)
	assert.False(t, result.Voiced)
	assert.Zero(t, result.Frequency)
}

func TestSwitchAlgorithmTakesEffectNextBuffer(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)
	engine := newTestEngine(t, AlgorithmAutocorrelation)

	ref := sineBuffer(t, pool, 440)
	defer func() { require.NoError(t, ref.Release()) }()

	first := engine.Detect(ref)
	assert.Equal(t, AlgorithmAutocorrelation, first.Algorithm)

	changed, err := engine.SwitchAlgorithm(AlgorithmYIN)
	require.NoError(t, err)
	assert.True(t, changed)

	second := engine.Detect(ref)
	assert.Equal(t, AlgorithmYIN, second.Algorithm)
}

func TestSwitchToActiveAlgorithmIsNoOp(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, AlgorithmYIN)

	changed, err := engine.SwitchAlgorithm(AlgorithmYIN)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, AlgorithmYIN, engine.Algorithm())
}

func TestSwitchAlgorithmRejectsUnknown(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, AlgorithmAuto)

	changed, err := engine.SwitchAlgorithm(Algorithm(99))
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
	assert.Equal(t, AlgorithmAuto, engine.Algorithm())
}

func TestAutoDefaultsToAutocorrelationWithoutHistory(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)
	engine := newTestEngine(t, AlgorithmAuto)

	ref := sineBuffer(t, pool, 440)
	defer func() { require.NoError(t, ref.Release()) }()

	result := engine.Detect(ref)
	assert.Equal(t, AlgorithmAutocorrelation, result.Algorithm)
}

func TestAutoPrefersHigherRollingConfidence(t *testing.T) {
	t.Parallel()

	pool := audio.NewPool(audio.PoolConfig{MaxActive: 8}, nil)
	engine := newTestEngine(t, AlgorithmAuto)

	// Seed clearly separated histories.
	for n := 0; n < 4; n++ {
		engine.history[AlgorithmAutocorrelation].add(0.3)
		engine.history[AlgorithmYIN].add(0.9)
	}

	ref := sineBuffer(t, pool, 440)
	defer func() { require.NoError(t, ref.Release()) }()

	result := engine.Detect(ref)
	assert.Equal(t, AlgorithmYIN, result.Algorithm)
}

func TestSetConfidenceThresholdValidation(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, AlgorithmAuto)

	require.NoError(t, engine.SetConfidenceThreshold(0.5))
	assert.InDelta(t, 0.5, engine.Configuration().ConfidenceThreshold, 0.0001)

	err := engine.SetConfidenceThreshold(1.2)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
	// Rejected, not clamped: the previous value survives.
	assert.InDelta(t, 0.5, engine.Configuration().ConfidenceThreshold, 0.0001)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(*Config) {}, true},
		{"negative threshold", func(c *Config) { c.ConfidenceThreshold = -0.1 }, false},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.01 }, false},
		{"zero min frequency", func(c *Config) { c.MinFrequency = 0 }, false},
		{"inverted range", func(c *Config) { c.MinFrequency = 500; c.MaxFrequency = 100 }, false},
		{"zero history", func(c *Config) { c.HistorySize = 0 }, false},
		{"unknown algorithm", func(c *Config) { c.Algorithm = Algorithm(42) }, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
			}
		})
	}
}
