package audio

import (
	"github.com/mandersson1024/intonation-toy-sub003/internal/errors"
)

// component is the error component tag for this package.
const component = "buffer-pool"

// Sentinel errors for buffer lifecycle misuse. All carry the buffer-pool
// category so errors.Is matches both the sentinel and the category.
var (
	// ErrPoolExhausted is returned by Acquire when the active-buffer limit
	// is reached. Recoverable: the coordinator drops the frame.
	ErrPoolExhausted = errors.Newf("buffer pool exhausted").
			Component(component).
			Category(errors.CategoryBufferPool).
			Build()

	// ErrAllocationFailed is returned when the pool cannot obtain storage
	// for a request.
	ErrAllocationFailed = errors.Newf("buffer allocation failed").
				Component(component).
				Category(errors.CategoryBufferPool).
				Build()

	// ErrBufferSealed is returned by Fill once a buffer has been published.
	ErrBufferSealed = errors.Newf("buffer is sealed after publication").
			Component(component).
			Category(errors.CategoryBufferPool).
			Build()

	// ErrBufferReleased is returned when a handle is used after release.
	ErrBufferReleased = errors.Newf("buffer handle already released").
				Component(component).
				Category(errors.CategoryBufferPool).
				Build()
)
