package meter

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Levels maps a channel id to its meter level for one tick (0-100).
// A channel that failed to sample is absent from the map.
type Levels map[string]int

// Subscription receives one Levels map per tick on C. C is closed when the
// subscription is removed or the broadcaster shuts down.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Levels

	c chan Levels
}

// Broadcaster fans out meter ticks to any number of subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	buffer int
	closed bool
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to
// buffer ticks before samples are dropped for them.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		subs:   make(map[uuid.UUID]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. It starts receiving from the next tick.
// Subscribing to a closed broadcaster yields an already closed channel.
func (b *Broadcaster) Subscribe() *Subscription {
	c := make(chan Levels, b.buffer)
	sub := &Subscription{ID: uuid.New(), C: c, c: c}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(c)
		return sub
	}
	b.subs[sub.ID] = sub
	slog.Debug("Meter subscriber added", "subscriber", sub.ID, "total", len(b.subs))
	return sub
}

// Unsubscribe removes sub and closes its channel. Once it returns no further
// tick is delivered to sub. Calling it twice is harmless.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.ID]; !ok {
		return
	}
	delete(b.subs, sub.ID)
	close(sub.c)
	slog.Debug("Meter subscriber removed", "subscriber", sub.ID, "total", len(b.subs))
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers levels to every subscriber. Each subscriber gets its own
// copy. A subscriber whose buffer is full misses this tick rather than
// stalling the others.
func (b *Broadcaster) Publish(levels Levels) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		select {
		case sub.c <- levels.clone():
		default:
			slog.Debug("Meter subscriber too slow, dropping tick", "subscriber", id)
		}
	}
}

// Close removes every subscriber and closes their channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, sub := range b.subs {
		close(sub.c)
		delete(b.subs, id)
	}
	b.closed = true
}

func (l Levels) clone() Levels {
	out := make(Levels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
