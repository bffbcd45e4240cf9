// Package audio provides zero-copy, reference-counted audio buffers backed
// by a size-classed pool. Buffers are filled exactly once at ingest,
// sealed on first clone, and shared by reference to every consumer; the
// last release returns the storage to the pool free list.
package audio

import (
	"sync/atomic"
	"time"
)

// Metadata describes the format and provenance of a buffer.
type Metadata struct {
	SampleRate uint32
	Channels   uint8
	Frames     int
	Timestamp  time.Time
	Seq        uint64
}

// block is the pooled storage shared by all clones of a buffer. The
// refcount counts live handles; the sealed flag forbids writes once the
// buffer has been published to a second owner.
type block struct {
	data   []float32
	refs   atomic.Int32
	sealed atomic.Bool
	pool   *Pool
}

// BufferRef is a shared-ownership handle over an immutable sample block.
// Each handle contributes exactly one reference; Release invalidates the
// handle and the last release returns the block to its pool.
type BufferRef struct {
	blk      *block
	meta     Metadata
	released atomic.Bool
}

// Clone returns a new handle sharing the same storage. O(1), no data copy.
// Cloning seals the block: Fill is rejected from then on. Cloning a
// released handle fails with ErrBufferReleased.
func (b *BufferRef) Clone() (*BufferRef, error) {
	if b.released.Load() {
		return nil, ErrBufferReleased
	}
	b.blk.sealed.Store(true)
	b.blk.refs.Add(1)
	clone := &BufferRef{blk: b.blk, meta: b.meta}
	return clone, nil
}

// Release drops this handle's reference. When the last handle is released
// the block returns to the pool free list. Releasing a handle twice
// returns ErrBufferReleased and does not touch the refcount, so the
// refcount can never underflow through the public API.
func (b *BufferRef) Release() error {
	if b.released.Swap(true) {
		return ErrBufferReleased
	}
	if n := b.blk.refs.Add(-1); n == 0 {
		b.blk.pool.put(b.blk)
	}
	return nil
}

// Fill copies src into the block. This is the single permitted write, used
// once at ingest; it fails with ErrBufferSealed after the buffer has been
// cloned and with ErrBufferReleased on a dead handle. src must match the
// block's frame count.
func (b *BufferRef) Fill(src []float32) error {
	if b.released.Load() {
		return ErrBufferReleased
	}
	if b.blk.sealed.Load() {
		return ErrBufferSealed
	}
	if len(src) != len(b.blk.data) {
		return errorsNewSizeMismatch(len(src), len(b.blk.data))
	}
	copy(b.blk.data, src)
	return nil
}

// Data returns the sample block. Callers must treat the slice as
// read-only; the same storage is visible to every clone.
func (b *BufferRef) Data() []float32 {
	if b.released.Load() {
		return nil
	}
	return b.blk.data
}

// Metadata returns the buffer metadata.
func (b *BufferRef) Metadata() Metadata {
	return b.meta
}

// RefCount returns the current reference count. Diagnostic only; the value
// may be stale the moment it is read.
func (b *BufferRef) RefCount() int32 {
	return b.blk.refs.Load()
}
