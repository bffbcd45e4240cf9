package source

import (
	"context"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// WavConfig configures a WAV-file replay source.
type WavConfig struct {
	Path string
	// QuantumSize is the number of mono samples delivered per emit call.
	QuantumSize int
	// Paced spaces quanta at real-time intervals; unpaced replays as fast
	// as the file decodes.
	Paced bool
}

// Validate rejects invalid replay settings.
func (c WavConfig) Validate() error {
	if c.Path == "" {
		return errors.Newf("wav source needs a file path").
			Component("source").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.QuantumSize <= 0 {
		return errors.Newf("wav quantum size %d must be positive", c.QuantumSize).
			Component("source").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// WavFileSource decodes a WAV file and replays it in capture-sized mono
// quanta. Stereo input is downmixed by averaging; the final partial
// quantum is delivered as-is, the way a device delivers its last burst.
type WavFileSource struct {
	config   WavConfig
	format   Format
	channels int
	bitDepth int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWavFileSource validates the file header and creates a replay source.
func NewWavFileSource(config WavConfig) (*WavFileSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, errors.New(err).
			Component("source").
			Category(errors.CategoryFileIO).
			Context("path", config.Path).
			Build()
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("not a valid WAV file: %s", config.Path).
			Component("source").
			Category(errors.CategoryFileIO).
			Build()
	}
	if decoder.BitDepth != 16 && decoder.BitDepth != 24 && decoder.BitDepth != 32 {
		return nil, errors.Newf("unsupported WAV bit depth %d", decoder.BitDepth).
			Component("source").
			Category(errors.CategoryFileIO).
			Build()
	}
	if decoder.NumChans != 1 && decoder.NumChans != 2 {
		return nil, errors.Newf("unsupported WAV channel count %d", decoder.NumChans).
			Component("source").
			Category(errors.CategoryFileIO).
			Build()
	}

	return &WavFileSource{
		config:   config,
		format:   Format{SampleRate: decoder.SampleRate, Channels: 1},
		channels: int(decoder.NumChans),
		bitDepth: int(decoder.BitDepth),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the replay goroutine.
func (w *WavFileSource) Start(ctx context.Context, emit func([]float32)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errors.Newf("wav source already started").
			Component("source").
			Category(errors.CategoryState).
			Build()
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx, emit)
	return nil
}

func (w *WavFileSource) run(ctx context.Context, emit func([]float32)) {
	defer close(w.done)

	f, err := os.Open(w.config.Path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()

	var ticker *time.Ticker
	if w.config.Paced {
		interval := time.Duration(float64(w.config.QuantumSize) / float64(w.format.SampleRate) * float64(time.Second))
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	divisor := float32(int64(1) << (w.bitDepth - 1))
	buf := &goaudio.IntBuffer{
		Data:   make([]int, w.config.QuantumSize*w.channels*4),
		Format: &goaudio.Format{SampleRate: int(w.format.SampleRate), NumChannels: w.channels},
	}

	pending := make([]float32, 0, w.config.QuantumSize*2)
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil || n == 0 {
			break
		}

		// Normalize to [-1,1) and downmix interleaved channels to mono.
		frames := n / w.channels
		for i := 0; i < frames; i++ {
			var sum float32
			for ch := 0; ch < w.channels; ch++ {
				sum += float32(buf.Data[i*w.channels+ch]) / divisor
			}
			pending = append(pending, sum/float32(w.channels))
		}

		for len(pending) >= w.config.QuantumSize {
			if !w.deliver(ctx, ticker, emit, pending[:w.config.QuantumSize]) {
				return
			}
			pending = pending[w.config.QuantumSize:]
		}
	}

	if len(pending) > 0 {
		w.deliver(ctx, ticker, emit, pending)
	}
}

// deliver emits one quantum, honoring pacing and cancellation. Returns
// false when the replay should end.
func (w *WavFileSource) deliver(ctx context.Context, ticker *time.Ticker, emit func([]float32), quantum []float32) bool {
	if ticker != nil {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	} else if ctx.Err() != nil {
		return false
	}
	emit(quantum)
	return true
}

// Stop cancels the replay and waits for it to exit. Idempotent.
func (w *WavFileSource) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	started := w.started
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-w.done
	}
}

// Done is closed when the replay has ended, including at end of file.
func (w *WavFileSource) Done() <-chan struct{} {
	return w.done
}

// Format reports the replayed stream format: always mono after downmix,
// at the file's native sample rate.
func (w *WavFileSource) Format() Format {
	return w.format
}
