package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerCutsWholeFrames(t *testing.T) {
	t.Parallel()

	f := newFramer(4, 2)

	f.push([]float32{1, 2, 3})
	_, ok := f.nextFrame()
	assert.False(t, ok)
	assert.Equal(t, 3, f.pending())

	f.push([]float32{4, 5, 6, 7, 8})
	frame, ok := f.nextFrame()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3, 4}, frame)

	frame, ok = f.nextFrame()
	require.True(t, ok)
	assert.Equal(t, []float32{5, 6, 7, 8}, frame)

	_, ok = f.nextFrame()
	assert.False(t, ok)
	assert.Zero(t, f.pending())
}

func TestFramerOverflowDropsTail(t *testing.T) {
	t.Parallel()

	f := newFramer(4, 1)

	dropped := f.push(make([]float32, 6))
	assert.Equal(t, 2, dropped)
	assert.Equal(t, uint64(2), f.droppedSamples())
	assert.Equal(t, 4, f.pending())

	// The kept prefix still frames normally.
	_, ok := f.nextFrame()
	assert.True(t, ok)
}

func TestFramerReset(t *testing.T) {
	t.Parallel()

	f := newFramer(4, 2)
	f.push(make([]float32, 5))
	f.reset()
	assert.Zero(t, f.pending())
	_, ok := f.nextFrame()
	assert.False(t, ok)
}
