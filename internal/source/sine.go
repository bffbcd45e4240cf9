package source

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// SineConfig configures a synthetic sine source.
type SineConfig struct {
	Frequency  float64
	Amplitude  float64
	SampleRate uint32
	// QuantumSize is the number of samples delivered per emit call.
	QuantumSize int
	// Quanta limits the total number of quanta delivered; zero means
	// unlimited (until Stop or ctx cancellation).
	Quanta int
	// Paced spaces quanta at real-time intervals. Unpaced delivery is for
	// tests; it requires a Quanta limit.
	Paced bool
}

// Validate rejects invalid generator settings.
func (c SineConfig) Validate() error {
	if c.Frequency <= 0 || c.SampleRate == 0 || c.QuantumSize <= 0 {
		return errors.Newf("sine source needs positive frequency, sample rate and quantum size").
			Component("source").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.Amplitude <= 0 || c.Amplitude > 1 {
		return errors.Newf("sine amplitude %.2f must be in (0,1]", c.Amplitude).
			Component("source").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !c.Paced && c.Quanta <= 0 {
		return errors.Newf("unpaced sine source requires a quanta limit").
			Component("source").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// SineSource generates a phase-continuous sine wave in capture-sized
// quanta. The CLI default source; also the deterministic signal for
// integration-style tests.
type SineSource struct {
	config SineConfig

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSineSource creates a sine source.
func NewSineSource(config SineConfig) (*SineSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SineSource{
		config: config,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the generator goroutine.
func (s *SineSource) Start(ctx context.Context, emit func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Newf("sine source already started").
			Component("source").
			Category(errors.CategoryState).
			Build()
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, emit)
	return nil
}

func (s *SineSource) run(ctx context.Context, emit func([]float32)) {
	defer close(s.done)

	var ticker *time.Ticker
	if s.config.Paced {
		interval := time.Duration(float64(s.config.QuantumSize) / float64(s.config.SampleRate) * float64(time.Second))
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	step := 2 * math.Pi * s.config.Frequency / float64(s.config.SampleRate)
	var phase float64

	for delivered := 0; s.config.Quanta == 0 || delivered < s.config.Quanta; delivered++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		quantum := make([]float32, s.config.QuantumSize)
		for i := range quantum {
			quantum[i] = float32(s.config.Amplitude * math.Sin(phase))
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
		emit(quantum)
	}
}

// Stop cancels the generator and waits for it to exit. Idempotent.
func (s *SineSource) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}
}

// Done is closed when the generator has exited.
func (s *SineSource) Done() <-chan struct{} {
	return s.done
}

// Format reports the generated stream format. Always mono.
func (s *SineSource) Format() Format {
	return Format{SampleRate: s.config.SampleRate, Channels: 1}
}
