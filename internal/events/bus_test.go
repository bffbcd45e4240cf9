package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(laneCapacity int) *Bus {
	return NewBus(Config{LaneCapacity: laneCapacity}, nil)
}

func TestCriticalDispatchBypassesQueue(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var got []PitchDetected
	Subscribe(bus, func(e PitchDetected) {
		got = append(got, e)
	})

	ev := PitchDetected{Frequency: 440, Confidence: 0.9, Timestamp: time.Now()}
	bus.Publish(ev)

	// Observed without any ProcessEvents call.
	require.Len(t, got, 1)
	assert.InDelta(t, 440.0, got[0].Frequency, 0.001)
	assert.Equal(t, 0, bus.QueueDepth(PriorityCritical))
}

func TestTypedSubscriptionOnlyReceivesItsKind(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var errs []ProcessingError
	var metricsSeen []PerformanceMetric
	Subscribe(bus, func(e ProcessingError) { errs = append(errs, e) })
	Subscribe(bus, func(e PerformanceMetric) { metricsSeen = append(metricsSeen, e) })

	bus.Publish(ProcessingError{Stage: "detect", Message: "bad frame", Timestamp: time.Now()})
	bus.Publish(PerformanceMetric{Stage: "aggregate", Value: 12, Unit: "ms", Timestamp: time.Now()})
	bus.ProcessEvents()

	require.Len(t, errs, 1)
	assert.Equal(t, "detect", errs[0].Stage)
	require.Len(t, metricsSeen, 1)
	assert.Equal(t, "aggregate", metricsSeen[0].Stage)
}

func TestDrainOrderAcrossLanes(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var order []Kind
	Subscribe(bus, func(e StateChanged) { order = append(order, e.EventKind()) })
	Subscribe(bus, func(e PerformanceMetric) { order = append(order, e.EventKind()) })
	Subscribe(bus, func(e PitchDetected) { order = append(order, e.EventKind()) })

	now := time.Now()
	// Publish lowest priority first to prove drain order is by priority,
	// not publish order.
	bus.Publish(PerformanceMetric{Stage: "a", Timestamp: now})
	bus.Publish(StateChanged{Scope: ScopePipeline, Timestamp: now})
	bus.Publish(PitchDetected{Frequency: 220, Timestamp: now})

	// Critical was already delivered at publish time.
	require.Equal(t, []Kind{KindPitchDetected}, order)

	bus.ProcessEvents()
	assert.Equal(t, []Kind{KindPitchDetected, KindStateChanged, KindPerformanceMetric}, order)
}

func TestFIFOWithinLane(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var stages []string
	Subscribe(bus, func(e ProcessingError) { stages = append(stages, e.Stage) })

	for _, stage := range []string{"one", "two", "three"} {
		bus.Publish(ProcessingError{Stage: stage, Timestamp: time.Now()})
	}
	bus.ProcessEvents()

	assert.Equal(t, []string{"one", "two", "three"}, stages)
}

func TestInsertionOrderWithinKind(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		Subscribe(bus, func(StateChanged) { order = append(order, i) })
	}

	bus.Publish(StateChanged{Scope: ScopeCapture, Timestamp: time.Now()})
	bus.ProcessEvents()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestLaneOverflowEvictsOldest(t *testing.T) {
	t.Parallel()

	bus := newTestBus(3)

	var stages []string
	var overflows []QueueOverflow
	Subscribe(bus, func(e PerformanceMetric) { stages = append(stages, e.Stage) })
	Subscribe(bus, func(e QueueOverflow) { overflows = append(overflows, e) })

	for _, stage := range []string{"1", "2", "3", "4", "5"} {
		bus.Publish(PerformanceMetric{Stage: stage, Timestamp: time.Now()})
	}
	bus.ProcessEvents()

	// Exactly the two oldest evicted, exactly one diagnostic.
	assert.Equal(t, []string{"3", "4", "5"}, stages)
	require.Len(t, overflows, 1)
	assert.Equal(t, PriorityLow, overflows[0].Lane)
	assert.Equal(t, 2, overflows[0].Evicted)
	assert.Equal(t, uint64(2), bus.Stats().Evicted)

	// The tally resets: a clean tick emits no further diagnostic.
	bus.ProcessEvents()
	assert.Len(t, overflows, 1)
}

func TestPublishDuringDrainLandsNextTick(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var seen []string
	Subscribe(bus, func(e ProcessingError) {
		seen = append(seen, e.Stage)
		if e.Stage == "first" {
			bus.Publish(ProcessingError{Stage: "second", Timestamp: time.Now()})
		}
	})

	bus.Publish(ProcessingError{Stage: "first", Timestamp: time.Now()})
	bus.ProcessEvents()
	assert.Equal(t, []string{"first"}, seen)

	bus.ProcessEvents()
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestUnsubscribeTakesEffectNextDispatch(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var count int
	sub := Subscribe(bus, func(StateChanged) { count++ })

	bus.Publish(StateChanged{Scope: ScopePipeline, Timestamp: time.Now()})
	bus.ProcessEvents()
	require.Equal(t, 1, count)

	sub.Unsubscribe()
	bus.Publish(StateChanged{Scope: ScopePipeline, Timestamp: time.Now()})
	bus.ProcessEvents()
	assert.Equal(t, 1, count)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)

	var after int
	Subscribe(bus, func(StateChanged) { panic("handler bug") })
	Subscribe(bus, func(StateChanged) { after++ })

	require.NotPanics(t, func() {
		bus.Publish(StateChanged{Scope: ScopePipeline, Timestamp: time.Now()})
		bus.ProcessEvents()
	})

	assert.Equal(t, 1, after)
	assert.Equal(t, uint64(1), bus.Stats().Panics)
}

func TestSlowQueuedHandlerIsAbandoned(t *testing.T) {
	t.Parallel()

	bus := NewBus(Config{LaneCapacity: 8, HandlerBudget: 5 * time.Millisecond}, nil)

	release := make(chan struct{})
	var finished sync.WaitGroup
	finished.Add(1)
	Subscribe(bus, func(PerformanceMetric) {
		defer finished.Done()
		<-release
	})

	var fastRan bool
	Subscribe(bus, func(PerformanceMetric) { fastRan = true })

	bus.Publish(PerformanceMetric{Stage: "slow", Timestamp: time.Now()})

	start := time.Now()
	bus.ProcessEvents()
	elapsed := time.Since(start)

	// The drain moved past the stuck handler and still ran the next one.
	assert.True(t, fastRan)
	assert.Less(t, elapsed, 200*time.Millisecond)
	assert.Equal(t, uint64(1), bus.Stats().Timeouts)

	close(release)
	finished.Wait()
}

func TestEmptyProcessEventsIsNoOp(t *testing.T) {
	t.Parallel()

	bus := newTestBus(8)
	assert.Zero(t, bus.ProcessEvents())
}

func TestConcurrentPublish(t *testing.T) {
	t.Parallel()

	bus := newTestBus(1024)

	var mu sync.Mutex
	var count int
	Subscribe(bus, func(PerformanceMetric) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				bus.Publish(PerformanceMetric{Stage: "x", Timestamp: time.Now()})
			}
		}()
	}
	wg.Wait()
	bus.ProcessEvents()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 400, count)
}
