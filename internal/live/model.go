// Package live provides a shared in-memory board of unit states with
// pub/sub for gRPC and SSE streaming.
package live

import (
	"sync"

	"stockmind/internal/domain"
)

// UnitEvent is emitted to subscribers whenever a unit changes.
type UnitEvent struct {
	Seq  uint64 // board-wide, strictly increasing
	Unit domain.Unit
}

// Board holds the latest state of every unit it has seen. Publish never
// blocks, so engines may call it while holding their own locks.
type Board struct {
	mu    sync.RWMutex
	order []string
	units map[string]domain.Unit
	seq   uint64

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan UnitEvent
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		units: make(map[string]domain.Unit),
		subs:  make(map[int]chan UnitEvent),
	}
}

// Seed records units without notifying subscribers, so a stream opened
// before any activity still starts with a full roster.
func (b *Board) Seed(units []domain.Unit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range units {
		b.putLocked(u)
	}
}

// Publish records u and notifies subscribers (non-blocking send).
func (b *Board) Publish(u domain.Unit) {
	b.mu.Lock()
	b.putLocked(u)
	b.seq++
	evt := UnitEvent{Seq: b.seq, Unit: u}

	// Send while still holding mu so events reach every subscriber in Seq
	// order.
	b.subsMu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber, drop event.
		}
	}
	b.subsMu.Unlock()
	b.mu.Unlock()
}

func (b *Board) putLocked(u domain.Unit) {
	if _, ok := b.units[u.ID]; !ok {
		b.order = append(b.order, u.ID)
	}
	b.units[u.ID] = u
}

// Snapshot returns every unit in first-seen order and the sequence number
// of the last event it reflects.
func (b *Board) Snapshot() ([]domain.Unit, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Unit, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.units[id])
	}
	return out, b.seq
}

// Unit returns the latest state of one unit.
func (b *Board) Unit(id string) (domain.Unit, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.units[id]
	return u, ok
}

// Subscribe creates a new subscription channel for unit events.
func (b *Board) Subscribe(bufSize int) (id int, ch <-chan UnitEvent) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	id = b.nextSubID
	b.nextSubID++
	c := make(chan UnitEvent, bufSize)
	b.subs[id] = c
	return id, c
}

// SnapshotAndSubscribe atomically takes a snapshot and subscribes, so no
// event is lost or duplicated between the two.
func (b *Board) SnapshotAndSubscribe(bufSize int) ([]domain.Unit, int, <-chan UnitEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Unit, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.units[id])
	}
	id, ch := b.Subscribe(bufSize)
	return out, id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Board) Unsubscribe(id int) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}
