// Package bus provides the in-process publish/subscribe channel used
// by the ticket store to announce committed mutations.
//
// The bus is strictly in-process: independent OS processes do not see
// each other's events and must re-read the store instead. A Bus is
// constructed per process and passed explicitly to every component
// that needs it; there is no package-level instance.
package bus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber event buffer size.
const DefaultBuffer = 64

// Bus fans events out to subscribers. Publish never blocks: each
// subscriber has a bounded buffer and the oldest pending event is
// dropped when it overflows.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives events in publish order on Events(). Dropped()
// counts events discarded because the subscriber fell behind.
type Subscription struct {
	bus     *Bus
	ch      chan Event
	dropped atomic.Uint64

	// sendMu serializes drop-oldest handling so a slow subscriber
	// cannot reorder events between two concurrent publishers.
	sendMu sync.Mutex

	closeOnce sync.Once
}

// Subscribe registers a new subscriber with the given buffer size
// (DefaultBuffer if n <= 0). Events published after Subscribe returns
// are delivered in publish order.
func (b *Bus) Subscribe(n int) *Subscription {
	if n <= 0 {
		n = DefaultBuffer
	}
	sub := &Subscription{bus: b, ch: make(chan Event, n)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscriber. It never
// blocks on a slow subscriber: when a buffer is full the oldest
// pending event is dropped and counted.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.send(ev)
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.closeOnce.Do(func() { close(sub.ch) })
		delete(b.subs, sub)
	}
}

func (s *Subscription) send(ev Event) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest pending event to make room. The
	// consumer may race us for it, in which case the send below
	// succeeds without dropping anything.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the ordered event stream. The channel is closed by
// Unsubscribe or Bus.Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped returns the number of events discarded because this
// subscriber's buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe removes the subscription and closes its channel. It is
// safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ch) })
}
