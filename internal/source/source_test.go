package source

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// quantumSink collects emitted quanta; sources emit from their own
// goroutine.
type quantumSink struct {
	mu      sync.Mutex
	quanta  [][]float32
	samples int
}

func (s *quantumSink) emit(quantum []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := make([]float32, len(quantum))
	copy(q, quantum)
	s.quanta = append(s.quanta, q)
	s.samples += len(quantum)
}

func (s *quantumSink) all() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float32
	for _, q := range s.quanta {
		out = append(out, q...)
	}
	return out
}

func waitDone(t *testing.T, src Source) {
	t.Helper()
	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("source did not finish")
	}
}

func TestSineSourceGeneratesPhaseContinuousWave(t *testing.T) {
	t.Parallel()

	src, err := NewSineSource(SineConfig{
		Frequency:   440,
		Amplitude:   0.8,
		SampleRate:  44100,
		QuantumSize: 512,
		Quanta:      4,
	})
	require.NoError(t, err)
	assert.Equal(t, Format{SampleRate: 44100, Channels: 1}, src.Format())

	sink := &quantumSink{}
	require.NoError(t, src.Start(context.Background(), sink.emit))
	waitDone(t, src)
	src.Stop()

	samples := sink.all()
	require.Len(t, samples, 4*512)

	// Phase continuity across quantum boundaries: the whole stream must
	// match one uninterrupted sine.
	step := 2 * math.Pi * 440 / 44100
	for i, got := range samples {
		want := 0.8 * math.Sin(float64(i)*step)
		assert.InDelta(t, want, float64(got), 1e-4, "sample %d", i)
	}
}

func TestSineSourceStopIdempotent(t *testing.T) {
	t.Parallel()

	src, err := NewSineSource(SineConfig{
		Frequency:   440,
		Amplitude:   0.5,
		SampleRate:  44100,
		QuantumSize: 64,
		Quanta:      1,
	})
	require.NoError(t, err)

	require.NoError(t, src.Start(context.Background(), func([]float32) {}))
	src.Stop()
	src.Stop()

	// A second Start on a finished source is rejected.
	assert.Error(t, src.Start(context.Background(), func([]float32) {}))
}

func TestSineSourcePacedStopsOnCancel(t *testing.T) {
	t.Parallel()

	src, err := NewSineSource(SineConfig{
		Frequency:   440,
		Amplitude:   0.5,
		SampleRate:  44100,
		QuantumSize: 441, // 10 ms quanta
		Paced:       true,
	})
	require.NoError(t, err)

	sink := &quantumSink{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx, sink.emit))

	time.Sleep(35 * time.Millisecond)
	cancel()
	waitDone(t, src)
	src.Stop()
}

func TestSineConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config SineConfig
	}{
		{"zero frequency", SineConfig{Amplitude: 0.5, SampleRate: 44100, QuantumSize: 64, Quanta: 1}},
		{"amplitude over one", SineConfig{Frequency: 440, Amplitude: 1.5, SampleRate: 44100, QuantumSize: 64, Quanta: 1}},
		{"unpaced without limit", SineConfig{Frequency: 440, Amplitude: 0.5, SampleRate: 44100, QuantumSize: 64}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewSineSource(tt.config)
			assert.Error(t, err)
		})
	}
}

// writeTestWav encodes 16-bit PCM from float samples, interleaved if
// stereo.
func writeTestWav(t *testing.T, path string, sampleRate, channels int, samples []float32) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767)
	}
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:   data,
		Format: &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestWavFileSourceReplaysMono(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/8000))
	}
	writeTestWav(t, path, 8000, 1, samples)

	src, err := NewWavFileSource(WavConfig{Path: path, QuantumSize: 256})
	require.NoError(t, err)
	assert.Equal(t, Format{SampleRate: 8000, Channels: 1}, src.Format())

	sink := &quantumSink{}
	require.NoError(t, src.Start(context.Background(), sink.emit))
	waitDone(t, src)
	src.Stop()

	got := sink.all()
	require.Len(t, got, 1000)
	// Three full quanta plus the partial tail.
	assert.Len(t, sink.quanta, 4)
	assert.Len(t, sink.quanta[3], 1000-3*256)

	for i := range got {
		assert.InDelta(t, samples[i], got[i], 1.0/32768+1e-4, "sample %d", i)
	}
}

func TestWavFileSourceDownmixesStereo(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Left 0.8, right 0.4: the mono mix is 0.6.
	interleaved := make([]float32, 400)
	for i := 0; i < len(interleaved); i += 2 {
		interleaved[i] = 0.8
		interleaved[i+1] = 0.4
	}
	writeTestWav(t, path, 8000, 2, interleaved)

	src, err := NewWavFileSource(WavConfig{Path: path, QuantumSize: 100})
	require.NoError(t, err)

	sink := &quantumSink{}
	require.NoError(t, src.Start(context.Background(), sink.emit))
	waitDone(t, src)
	src.Stop()

	got := sink.all()
	require.Len(t, got, 200)
	for i, s := range got {
		assert.InDelta(t, 0.6, float64(s), 0.01, "frame %d", i)
	}
}

func TestWavFileSourceRejectsMissingAndInvalidFiles(t *testing.T) {
	t.Parallel()

	_, err := NewWavFileSource(WavConfig{Path: filepath.Join(t.TempDir(), "absent.wav"), QuantumSize: 64})
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not audio"), 0o644))
	_, err = NewWavFileSource(WavConfig{Path: garbage, QuantumSize: 64})
	assert.Error(t, err)
}
