package events

import (
	"sync"
)

// lane is one bounded FIFO priority tier. A full lane evicts its oldest
// event and tallies the eviction; the tally is converted into a single
// QueueOverflow diagnostic at the next drain.
type lane struct {
	mu       sync.Mutex
	events   []Event
	evicted  int
	capacity int
}

func newLane(capacity int) *lane {
	return &lane{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// push appends ev, evicting the oldest event when the lane is full.
// Returns true if an eviction happened.
func (l *lane) push(ev Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := false
	if len(l.events) >= l.capacity {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
		l.evicted++
		evicted = true
	}
	l.events = append(l.events, ev)
	return evicted
}

// take removes and returns the lane's current contents and eviction tally.
// Events published after take land in the lane for the next tick.
func (l *lane) take() (batch []Event, evicted int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch = l.events
	evicted = l.evicted
	l.events = make([]Event, 0, l.capacity)
	l.evicted = 0
	return batch, evicted
}

// depth returns the number of queued events.
func (l *lane) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
