package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderMetadata(t *testing.T) {
	t.Parallel()

	err := Newf("allocation of %d frames failed", 1024).
		Component("buffer-pool").
		Category(CategoryBufferPool).
		Context("frames", 1024).
		Build()

	require.NotNil(t, err)
	assert.Equal(t, "allocation of 1024 frames failed", err.Error())
	assert.Equal(t, "buffer-pool", err.GetComponent())
	assert.Equal(t, CategoryBufferPool, err.GetCategory())
	assert.Equal(t, 1024, err.GetContext()["frames"])
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	err := New(nil).Build()
	require.NotNil(t, err)
	assert.NotEmpty(t, err.Error())
	assert.Equal(t, ComponentUnknown, err.GetComponent())
	assert.Equal(t, CategoryGeneric, err.GetCategory())
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	sentinel := Newf("pool exhausted").Category(CategoryBufferPool).Build()
	err := Newf("no free block for 2048 frames").
		Component("buffer-pool").
		Category(CategoryBufferPool).
		Build()

	assert.True(t, Is(err, sentinel))
	assert.False(t, Is(err, Newf("other").Category(CategoryDetection).Build()))
}

func TestUnwrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("underlying failure")
	err := New(cause).Category(CategoryDetection).Build()

	assert.True(t, Is(err, cause))
	assert.Equal(t, cause, Unwrap(err))
}

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"enhanced", Newf("x").Category(CategoryConfiguration).Build(), CategoryConfiguration},
		{"wrapped", fmt.Errorf("outer: %w", Newf("x").Category(CategoryState).Build()), CategoryState},
		{"plain", fmt.Errorf("plain"), CategoryGeneric},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(Newf("pool corrupted").Category(CategoryPipelineFatal).Build()))
	assert.False(t, IsFatal(Newf("frame dropped").Category(CategoryBufferPool).Build()))
	assert.False(t, IsFatal(fmt.Errorf("plain")))
}
