package pipeline

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const bytesPerSample = 4

// framer accumulates variable-size capture quanta in a ring buffer and
// cuts them into fixed-size analysis frames. A quantum that does not fit
// drops its overflow and tallies it; the capture thread is never blocked.
type framer struct {
	mu         sync.Mutex
	ring       *ringbuffer.RingBuffer
	frameBytes int

	encodeBuf []byte
	frameBuf  []byte
	samples   []float32

	overflow uint64 // samples dropped because the ring was full
}

// newFramer creates a framer cutting frameSize-sample frames, with ring
// capacity for capacityFrames frames of backlog.
func newFramer(frameSize, capacityFrames int) *framer {
	frameBytes := frameSize * bytesPerSample
	return &framer{
		ring:       ringbuffer.New(frameBytes * capacityFrames),
		frameBytes: frameBytes,
		frameBuf:   make([]byte, frameBytes),
		samples:    make([]float32, frameSize),
	}
}

// push appends a capture quantum to the ring, dropping whatever does not
// fit. Returns the number of samples dropped.
func (f *framer) push(samples []float32) int {
	need := len(samples) * bytesPerSample
	if cap(f.encodeBuf) < need {
		f.encodeBuf = make([]byte, need)
	}
	buf := f.encodeBuf[:need]
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(v))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fit := need
	if free := f.ring.Free(); free < need {
		fit = free - free%bytesPerSample
	}
	if fit > 0 {
		// Cannot fail: fit is bounded by Free under the same lock.
		_, _ = f.ring.Write(buf[:fit])
	}

	dropped := (need - fit) / bytesPerSample
	f.overflow += uint64(dropped)
	return dropped
}

// nextFrame pops one whole frame if buffered. The returned slice is reused
// by the next call; the caller copies it into pooled storage before
// touching the framer again.
func (f *framer) nextFrame() ([]float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ring.Length() < f.frameBytes {
		return nil, false
	}
	if _, err := f.ring.Read(f.frameBuf); err != nil {
		return nil, false
	}

	for i := range f.samples {
		bits := binary.LittleEndian.Uint32(f.frameBuf[i*bytesPerSample:])
		f.samples[i] = math.Float32frombits(bits)
	}
	return f.samples, true
}

// pending returns the number of buffered samples not yet framed.
func (f *framer) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ring.Length() / bytesPerSample
}

// droppedSamples returns the cumulative overflow tally.
func (f *framer) droppedSamples() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overflow
}

// reset discards all buffered data.
func (f *framer) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ring.Reset()
}
