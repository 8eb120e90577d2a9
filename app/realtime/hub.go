package realtime

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one live connection watching a room.
type Subscriber struct {
	roomID uint
	events chan ChatEvent
	once   sync.Once
}

// Events yields room events until the subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan ChatEvent {
	return s.events
}

func (s *Subscriber) RoomID() uint {
	return s.roomID
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub tracks subscribers per room on this instance.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	rooms  map[uint]map[*Subscriber]struct{}
	closed bool

	dropped atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		buffer: buffer,
		rooms:  make(map[uint]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a subscriber for roomID. After Close the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe(roomID uint) *Subscriber {
	sub := &Subscriber{roomID: roomID, events: make(chan ChatEvent, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Subscriber]struct{})
	}
	h.rooms[roomID][sub] = struct{}{}
	subscribersGauge.Inc()
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.rooms[sub.roomID]; ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			subscribersGauge.Dec()
		}
		if len(subs) == 0 {
			delete(h.rooms, sub.roomID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Close ends every live subscription so open streams return during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for roomID, subs := range h.rooms {
		for sub := range subs {
			sub.close()
			subscribersGauge.Dec()
		}
		delete(h.rooms, roomID)
	}
}

// Deliver hands ev to every subscriber of its room without blocking. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Deliver(ev ChatEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.rooms[ev.RoomID] {
		select {
		case sub.events <- ev:
			delivered++
		default:
			h.dropped.Add(1)
			droppedEvents.Inc()
		}
	}
	return delivered
}

// Subscribers counts live subscribers of a room.
func (h *Hub) Subscribers(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
