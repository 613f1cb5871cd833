// Package bus implements the per-room ordered multicast channel delivering
// authoritative state-change and notification events to realtime subscribers.
package bus

import (
	"sync"
	"time"
)

// HistorySize bounds the per-room replay buffer.
const HistorySize = 256

// Event is one delivered room event. SequenceID is monotonic per room
// starting at 1; duplicates re-delivered during replay carry the same
// SequenceID and must be deduplicated by the client.
type Event struct {
	Room       string      `json:"room"`
	SequenceID uint64      `json:"sequenceId"`
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Subscriber receives events for a room. Enqueue must never block: it returns
// false when the subscriber's outbound queue is full, and the bus then
// unsubscribes it and calls DropSlow so the transport can close the
// connection with reason "slow_consumer".
type Subscriber interface {
	Enqueue(ev Event) bool
	DropSlow(room string)
}

type room struct {
	mu   sync.Mutex
	seq  uint64
	ring []Event
	subs map[Subscriber]struct{}
}

// Bus is the process-wide event fan-out. Rooms are created lazily on first
// publish or subscribe and dropped when their lobby closes.
type Bus struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{rooms: make(map[string]*room)}
}

func (b *Bus) room(name string) *room {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[name]
	if !ok {
		r = &room{subs: make(map[Subscriber]struct{})}
		b.rooms[name] = r
	}
	return r
}

// Publish assigns the next sequence id, appends the event to the room's
// history ring, and pushes it to every subscriber. Slow subscribers are
// removed and notified via DropSlow after the room lock is released.
func (b *Bus) Publish(roomName, evType string, payload interface{}) Event {
	r := b.room(roomName)

	r.mu.Lock()
	r.seq++
	ev := Event{
		Room:       roomName,
		SequenceID: r.seq,
		Type:       evType,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
	r.ring = append(r.ring, ev)
	if len(r.ring) > HistorySize {
		r.ring = r.ring[len(r.ring)-HistorySize:]
	}

	var slow []Subscriber
	for sub := range r.subs {
		if !sub.Enqueue(ev) {
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		delete(r.subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range slow {
		sub.DropSlow(roomName)
	}
	return ev
}

// Subscribe adds sub to the room and returns the current sequence high-water
// mark, so the caller knows which events predate its subscription.
func (b *Bus) Subscribe(roomName string, sub Subscriber) uint64 {
	r := b.room(roomName)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub] = struct{}{}
	return r.seq
}

// Unsubscribe removes sub from the room, if present.
func (b *Bus) Unsubscribe(roomName string, sub Subscriber) {
	b.mu.Lock()
	r, ok := b.rooms[roomName]
	b.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.subs, sub)
	r.mu.Unlock()
}

// ReplaySince pushes every buffered event with SequenceID > lastSeen to sub,
// in order. Events older than the history window are gone; callers that fall
// behind the window must resync from a snapshot instead.
func (b *Bus) ReplaySince(roomName string, sub Subscriber, lastSeen uint64) {
	b.mu.Lock()
	r, ok := b.rooms[roomName]
	b.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	pending := make([]Event, 0, len(r.ring))
	for _, ev := range r.ring {
		if ev.SequenceID > lastSeen {
			pending = append(pending, ev)
		}
	}
	r.mu.Unlock()

	for _, ev := range pending {
		if !sub.Enqueue(ev) {
			sub.DropSlow(roomName)
			return
		}
	}
}

// Sequence returns the room's current high-water mark without subscribing.
func (b *Bus) Sequence(roomName string) uint64 {
	b.mu.Lock()
	r, ok := b.rooms[roomName]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// CloseRoom drops the room's history and subscriber set. Pending events
// already enqueued with subscribers are unaffected.
func (b *Bus) CloseRoom(roomName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rooms, roomName)
}
