package engine

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 64

// ChangeEvent is emitted after a dispatch was appended and applied.
type ChangeEvent struct {
	Store  string
	Seq    int64    // log sequence of the record
	Head   int64    // Store head after apply
	Slices []string // slices the batch touched, in definition order
}

// Hub fans change events out to subscribers, for external mirrors.
//
// Publish never blocks: a subscriber whose buffer is full misses the event
// and its drop counter goes up. Mirrors that must not miss anything should
// tail the log instead.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives change events on C until Close.
type Subscription struct {
	C <-chan ChangeEvent

	hub     *Hub
	ch      chan ChangeEvent
	dropped atomic.Int64
	once    sync.Once
}

// Subscribe registers a subscriber with the given buffer (DefaultBufferSize if <= 0).
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan ChangeEvent, buffer)
	sub := &Subscription{C: ch, hub: h, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.published.Add(1)
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// Close closes every subscription. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	clear(h.subs)
}

// HubStats is a point-in-time view of hub counters.
type HubStats struct {
	Subscribers int
	Published   int64
	Dropped     int64
}

// Stats returns hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Subscribers: len(h.subs),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
