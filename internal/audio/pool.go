package audio

import (
	"log/slog"
	"sync"

	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability/metrics"
)

const (
	bytesPerSample = 4

	// maxFramesPerBuffer bounds a single allocation request. Anything
	// larger is a caller bug, not a real capture frame.
	maxFramesPerBuffer = 1 << 24
)

// PoolConfig configures a buffer pool.
type PoolConfig struct {
	// MaxActive is the maximum number of buffers out of the pool at once;
	// Acquire fails with ErrPoolExhausted beyond it.
	MaxActive int
	// CeilingBytes caps the memory retained in free lists; blocks released
	// past the ceiling are dropped for the GC. Zero means no ceiling.
	CeilingBytes int64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Hits      uint64 // acquisitions served from a free list
	Misses    uint64 // acquisitions that allocated fresh storage
	Active    int    // buffers currently held by callers
	Evictions uint64 // blocks dropped past the memory ceiling
	FreeBytes int64  // bytes retained in free lists
}

// Pool hands out reference-counted buffers from size-classed free lists so
// the steady-state capture path never allocates.
type Pool struct {
	mu        sync.Mutex
	free      map[int][]*block // size class (frames) -> free blocks
	freeBytes int64
	active    int

	hits      uint64
	misses    uint64
	evictions uint64

	config  PoolConfig
	metrics *metrics.AudioMetrics
	logger  *slog.Logger
}

// NewPool creates a buffer pool. m may be nil to disable instrumentation.
func NewPool(config PoolConfig, m *metrics.AudioMetrics) *Pool {
	logger := logging.ForService("audio").With("component", "pool")
	if config.MaxActive <= 0 {
		config.MaxActive = 64
	}
	return &Pool{
		free:    make(map[int][]*block),
		config:  config,
		metrics: m,
		logger:  logger,
	}
}

// Acquire returns a buffer of exactly frames samples, reusing a free block
// of the matching size class when one exists. It never blocks beyond the
// free-list critical section and never panics; failures surface as
// buffer-pool errors the coordinator converts into dropped frames.
func (p *Pool) Acquire(frames int, meta Metadata) (*BufferRef, error) {
	if frames <= 0 {
		return nil, errors.Newf("invalid buffer size %d", frames).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	if frames > maxFramesPerBuffer {
		return nil, ErrAllocationFailed
	}

	p.mu.Lock()
	if p.active >= p.config.MaxActive {
		p.mu.Unlock()
		p.metrics.RecordAcquire("exhausted")
		return nil, ErrPoolExhausted
	}
	p.active++

	var blk *block
	if list := p.free[frames]; len(list) > 0 {
		blk = list[len(list)-1]
		list[len(list)-1] = nil
		p.free[frames] = list[:len(list)-1]
		p.freeBytes -= int64(cap(blk.data)) * bytesPerSample
		p.hits++
	} else {
		p.misses++
	}
	active := p.active
	freeBytes := p.freeBytes
	p.mu.Unlock()

	outcome := "hit"
	if blk == nil {
		outcome = "miss"
		blk = &block{
			data: make([]float32, frames),
			pool: p,
		}
	}

	blk.refs.Store(1)
	blk.sealed.Store(false)

	p.metrics.RecordAcquire(outcome)
	p.metrics.SetActiveBuffers(active)
	p.metrics.SetFreeListBytes(freeBytes)

	meta.Frames = frames
	return &BufferRef{blk: blk, meta: meta}, nil
}

// put returns a block whose last reference was dropped. Blocks past the
// memory ceiling are left for the GC instead of retained.
func (p *Pool) put(blk *block) {
	size := int64(cap(blk.data)) * bytesPerSample

	p.mu.Lock()
	p.active--
	evicted := p.config.CeilingBytes > 0 && p.freeBytes+size > p.config.CeilingBytes
	if !evicted {
		p.free[len(blk.data)] = append(p.free[len(blk.data)], blk)
		p.freeBytes += size
	} else {
		p.evictions++
	}
	active := p.active
	freeBytes := p.freeBytes
	p.mu.Unlock()

	if evicted {
		p.metrics.RecordEviction()
	} else {
		p.metrics.RecordRelease()
	}
	p.metrics.SetActiveBuffers(active)
	p.metrics.SetFreeListBytes(freeBytes)
}

// Drain releases all free-listed storage to the GC. Called by the pipeline
// on Stop; buffers still held by callers are unaffected and will be
// dropped when released.
func (p *Pool) Drain() {
	p.mu.Lock()
	dropped := len(p.free)
	p.free = make(map[int][]*block)
	p.freeBytes = 0
	p.mu.Unlock()

	p.metrics.SetFreeListBytes(0)
	p.logger.Debug("pool drained", "size_classes_dropped", dropped)
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Hits:      p.hits,
		Misses:    p.misses,
		Active:    p.active,
		Evictions: p.evictions,
		FreeBytes: p.freeBytes,
	}
}

// errorsNewSizeMismatch reports a Fill with the wrong sample count.
func errorsNewSizeMismatch(got, want int) error {
	return errors.Newf("fill size mismatch: got %d samples, buffer holds %d", got, want).
		Component(component).
		Category(errors.CategoryValidation).
		Context("got", got).
		Context("want", want).
		Build()
}
