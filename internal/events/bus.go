package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability/metrics"
)

// Config holds event bus configuration.
type Config struct {
	// LaneCapacity bounds each non-critical lane. Beyond it the oldest
	// event in the lane is evicted.
	LaneCapacity int
	// HandlerBudget is the time budget per handler for queued dispatch; a
	// handler still running at the deadline is logged and abandoned for
	// that event. Zero disables the budget. Critical dispatch is
	// synchronous by contract, so violations there are measured and
	// logged, never aborted.
	HandlerBudget time.Duration
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		LaneCapacity:  64,
		HandlerBudget: 10 * time.Millisecond,
	}
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published  uint64
	Dispatched uint64
	Evicted    uint64
	Timeouts   uint64
	Panics     uint64
}

// subscriber holds one registered handler. Unsubscription tombstones the
// entry; it is compacted out at the next snapshot rebuild.
type subscriber struct {
	id      uuid.UUID
	kind    Kind
	handle  func(Event)
	removed atomic.Bool
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// ID returns the subscription identifier.
func (s *Subscription) ID() uuid.UUID {
	return s.sub.id
}

// Unsubscribe removes the handler. O(1): the entry is tombstoned and takes
// effect at the next dispatch snapshot.
func (s *Subscription) Unsubscribe() {
	if s.sub.removed.Swap(true) {
		return
	}
	s.bus.dirty.Store(true)
}

// Bus routes typed events to subscribers in priority order. One Bus
// instance is constructed at pipeline startup and passed to every
// component that needs it; there is no package-level instance.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Kind][]*subscriber
	snapshot    atomic.Pointer[map[Kind][]*subscriber]
	dirty       atomic.Bool

	// lanes[0] is High, [1] Normal, [2] Low. Critical never queues.
	lanes [3]*lane

	published  atomic.Uint64
	dispatched atomic.Uint64
	evicted    atomic.Uint64
	timeouts   atomic.Uint64
	panics     atomic.Uint64

	config  Config
	metrics *metrics.BusMetrics
	logger  *slog.Logger
}

// NewBus creates an event bus. m may be nil to disable instrumentation.
func NewBus(config Config, m *metrics.BusMetrics) *Bus {
	if config.LaneCapacity <= 0 {
		config.LaneCapacity = DefaultConfig().LaneCapacity
	}

	b := &Bus{
		subscribers: make(map[Kind][]*subscriber),
		config:      config,
		metrics:     m,
		logger:      logging.ForService("events"),
	}
	for i := range b.lanes {
		b.lanes[i] = newLane(config.LaneCapacity)
	}
	empty := make(map[Kind][]*subscriber)
	b.snapshot.Store(&empty)

	b.logger.Info("event bus created",
		"lane_capacity", config.LaneCapacity,
		"handler_budget", config.HandlerBudget,
	)
	return b
}

// Subscribe registers fn for the event kind of its payload type. The kind
// is derived from the type parameter, so a handler can only ever be
// invoked with events of its own type; there is no runtime cast that can
// fail. Handlers registered for the same kind run in insertion order.
func Subscribe[E Event](b *Bus, fn func(E)) *Subscription {
	var zero E
	sub := &subscriber{
		id:   uuid.New(),
		kind: zero.EventKind(),
		handle: func(ev Event) {
			fn(ev.(E))
		},
	}

	b.mu.Lock()
	b.subscribers[sub.kind] = append(b.subscribers[sub.kind], sub)
	b.mu.Unlock()
	b.dirty.Store(true)

	return &Subscription{bus: b, sub: sub}
}

// currentSnapshot returns a consistent subscriber table, rebuilding it if
// subscriptions changed since the last dispatch.
func (b *Bus) currentSnapshot() map[Kind][]*subscriber {
	if !b.dirty.Load() {
		return *b.snapshot.Load()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty.Swap(false) {
		return *b.snapshot.Load()
	}

	snap := make(map[Kind][]*subscriber, len(b.subscribers))
	for kind, subs := range b.subscribers {
		kept := make([]*subscriber, 0, len(subs))
		for _, s := range subs {
			if !s.removed.Load() {
				kept = append(kept, s)
			}
		}
		b.subscribers[kind] = kept
		if len(kept) > 0 {
			snap[kind] = kept
		}
	}
	b.snapshot.Store(&snap)
	return snap
}

// Publish routes ev by its kind-derived priority. Critical events are
// dispatched synchronously to all matching subscribers before Publish
// returns; other priorities are appended to their lane and drained by
// ProcessEvents. Publishing is fire-and-forget for the producer.
func (b *Bus) Publish(ev Event) {
	priority := ev.EventPriority()
	b.published.Add(1)
	b.metrics.RecordPublished(priority.String())

	if priority == PriorityCritical {
		b.dispatchCritical(ev)
		return
	}

	if b.lanes[priority-1].push(ev) {
		b.evicted.Add(1)
		b.metrics.RecordEvicted(priority.String())
	}
}

// ProcessEvents drains the queued lanes in strict priority order, High
// before Normal before Low, FIFO within each lane. Called once per
// processing tick. It never blocks beyond the per-handler budget and
// returns the number of events dispatched. Events published during the
// drain land in their lane for the next tick.
func (b *Bus) ProcessEvents() int {
	dispatched := 0
	overflows := make([]QueueOverflow, 0, len(b.lanes))

	for i, l := range b.lanes {
		priority := Priority(i + 1)
		batch, evicted := l.take()
		b.metrics.SetLaneDepth(priority.String(), 0)

		for _, ev := range batch {
			b.dispatchQueued(ev)
			dispatched++
		}
		if evicted > 0 {
			overflows = append(overflows, QueueOverflow{
				Lane:      priority,
				Evicted:   evicted,
				Timestamp: time.Now(),
			})
		}
	}

	// One diagnostic per overflowed lane, delivered within the same tick.
	for _, ov := range overflows {
		b.logger.Warn("event lane overflow",
			"lane", ov.Lane.String(),
			"evicted", ov.Evicted,
		)
		b.dispatchQueued(ov)
		dispatched++
	}

	return dispatched
}

// dispatchCritical invokes all subscribers for ev on the caller's
// goroutine. Budget violations are measured and logged after the fact.
func (b *Bus) dispatchCritical(ev Event) {
	snap := b.currentSnapshot()
	for _, sub := range snap[ev.EventKind()] {
		start := time.Now()
		b.invoke(sub, ev)
		elapsed := time.Since(start)
		if b.config.HandlerBudget > 0 && elapsed > b.config.HandlerBudget {
			b.logger.Warn("critical handler exceeded budget",
				"kind", ev.EventKind(),
				"subscription", sub.id,
				"elapsed", elapsed,
				"budget", b.config.HandlerBudget,
			)
		}
	}
}

// dispatchQueued invokes all subscribers for ev, time-boxing each handler
// to the configured budget. A handler still running at the deadline is
// abandoned for this event and the drain moves on; the handler is not
// retried.
func (b *Bus) dispatchQueued(ev Event) {
	snap := b.currentSnapshot()
	for _, sub := range snap[ev.EventKind()] {
		if b.config.HandlerBudget <= 0 {
			b.invoke(sub, ev)
			continue
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			b.invoke(sub, ev)
		}()

		timer := time.NewTimer(b.config.HandlerBudget)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			b.timeouts.Add(1)
			b.metrics.RecordHandlerTimeout()
			b.logger.Warn("handler exceeded budget, abandoned",
				"kind", ev.EventKind(),
				"subscription", sub.id,
				"budget", b.config.HandlerBudget,
			)
		}
	}
}

// invoke runs one handler with panic isolation.
func (b *Bus) invoke(sub *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.metrics.RecordHandlerPanic()
			b.logger.Error("handler panicked",
				"kind", ev.EventKind(),
				"subscription", sub.id,
				"panic", r,
			)
		}
	}()

	sub.handle(ev)
	b.dispatched.Add(1)
	b.metrics.RecordDispatched(ev.EventPriority().String())
}

// QueueDepth returns the number of events waiting in the lane for p.
// Critical never queues and always reports zero.
func (b *Bus) QueueDepth(p Priority) int {
	if p == PriorityCritical || p < 0 || int(p) > len(b.lanes) {
		return 0
	}
	return b.lanes[p-1].depth()
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Dispatched: b.dispatched.Load(),
		Evicted:    b.evicted.Load(),
		Timeouts:   b.timeouts.Load(),
		Panics:     b.panics.Load(),
	}
}
