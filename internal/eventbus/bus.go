package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"lrcforge/internal/logging"
)

const (
	// MinHistorySize is the smallest replay buffer a bus will keep.
	MinHistorySize = 2000
	// MinOutboxSize is the smallest per-subscriber queue a bus will allocate.
	MinOutboxSize = 2000
)

// Options configures a Bus. Sizes below the minimums are raised to them.
type Options struct {
	HistorySize int
	OutboxSize  int
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Bus fans published events out to subscribers and keeps a bounded history for replay.
//
// Publish never blocks on a subscriber: a subscriber whose outbox is full is dropped
// and its channel closed. Sends happen under the same lock that assigns sequence
// numbers, so every subscriber sees events in publish order.
type Bus struct {
	mu      sync.Mutex
	ring    []Event
	head    int
	count   int
	seq     uint64
	subs    map[uint64]*Subscription
	nextSub uint64
	outbox  int
	closed  bool
	now     func() time.Time
	logger  *slog.Logger
}

// Subscription is a single observer's outbox.
type Subscription struct {
	id uint64
	ch chan Event
}

// Events returns the receive side of the outbox. It is closed when the
// subscriber is dropped, unsubscribed, or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// ID identifies the subscription for logging.
func (s *Subscription) ID() uint64 {
	return s.id
}

// New constructs a bus.
func New(opts Options) *Bus {
	history := opts.HistorySize
	if history < MinHistorySize {
		history = MinHistorySize
	}
	outbox := opts.OutboxSize
	if outbox < MinOutboxSize {
		outbox = MinOutboxSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Bus{
		ring:   make([]Event, history),
		subs:   make(map[uint64]*Subscription),
		outbox: outbox,
		now:    clock,
		logger: logging.NewComponentLogger(opts.Logger, "eventbus"),
	}
}

// Publish records the payload in history and offers it to every subscriber.
func (b *Bus) Publish(payload Payload) Event {
	b.mu.Lock()
	b.seq++
	ev := Event{
		Seq:       b.seq,
		Type:      payload.EventType(),
		Payload:   payload,
		Timestamp: b.now().UTC(),
	}
	b.push(ev)

	var dropped []uint64
	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(b.subs, id)
			close(sub.ch)
			dropped = append(dropped, id)
		}
	}
	b.mu.Unlock()

	for _, id := range dropped {
		logging.WarnWithContext(b.logger, "subscriber dropped", "subscriber_dropped",
			logging.Uint64("subscription", id),
			logging.Uint64("seq", ev.Seq),
			logging.String(logging.FieldErrorHint, "client must reconnect and read status for recent events"),
			logging.String(logging.FieldImpact, "subscriber missed live events"),
		)
	}
	return ev
}

func (b *Bus) push(ev Event) {
	capacity := len(b.ring)
	if b.count < capacity {
		b.ring[(b.head+b.count)%capacity] = ev
		b.count++
		return
	}
	b.ring[b.head] = ev
	b.head = (b.head + 1) % capacity
}

// Subscribe registers a new outbox. Events published before the call are not replayed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	sub := &Subscription{id: b.nextSub, ch: make(chan Event, b.outbox)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Repeated calls are no-ops.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Snapshot copies the history, oldest first.
func (b *Bus) Snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	return out
}

// Recent copies at most n of the newest history entries, oldest first.
func (b *Bus) Recent(n int) []Event {
	events := b.Snapshot()
	if n >= 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events
}

// Reset clears history. Sequence numbers keep increasing across resets.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.head = 0
	b.count = 0
}

// Len returns the number of events held in history.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the history bound.
func (b *Bus) Capacity() int {
	return len(b.ring)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber. Later subscriptions are returned already closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
