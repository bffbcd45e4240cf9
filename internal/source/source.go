// Package source provides capture sources for the runner: adapters with
// the shape of a platform capture callback, delivering fixed-size sample
// quanta to a consumer function. The capture boundary proper (device I/O)
// stays outside the core; these sources stand in for it.
package source

import (
	"context"
)

// Format describes the sample stream a source produces.
type Format struct {
	SampleRate uint32
	Channels   uint8
}

// Source delivers capture quanta to an emit callback from its own
// goroutine, the way a device callback would.
type Source interface {
	// Start launches delivery. The emit callback is invoked once per
	// quantum until the stream ends, ctx is cancelled or Stop is called.
	Start(ctx context.Context, emit func(quantum []float32)) error
	// Stop ends delivery and waits for the delivery goroutine to exit.
	Stop()
	// Done is closed when delivery has ended for any reason.
	Done() <-chan struct{}
	// Format reports the stream format.
	Format() Format
}
