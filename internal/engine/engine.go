// Package engine drives agents and workflows through their progress state
// machines. Every unit owns a chain of timers; restarting a unit cancels the
// whole chain before scheduling a new one, and callbacks from a cancelled
// chain are ignored via a per-unit generation counter.
package engine

import (
	"errors"
	"time"

	"stockmind/internal/clock"
	"stockmind/internal/domain"
)

var (
	// ErrUnknownUnit is returned when an operation names a unit that is not
	// part of the collection.
	ErrUnknownUnit = errors.New("unknown unit")

	// ErrAlreadyRunning is returned by WorkflowEngine.Trigger while a run of
	// the same workflow is still in flight.
	ErrAlreadyRunning = errors.New("workflow already running")
)

// Publisher receives a copy of a unit every time its state changes. It is
// called with the engine lock held and must not block or call back into the
// engine.
type Publisher interface {
	Publish(u domain.Unit)
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Unit) {}

type timerSlot int

const (
	slotActivate timerSlot = iota
	slotTick
	slotReset
)

// unitState is one unit plus the timer handles of its current chain.
type unitState struct {
	unit   domain.Unit
	gen    uint64
	timers map[timerSlot]*clock.Timer
}

func newUnitState(u domain.Unit) *unitState {
	return &unitState{unit: u, timers: make(map[timerSlot]*clock.Timer)}
}

// set stores t in slot, stopping whatever was there.
func (s *unitState) set(slot timerSlot, t *clock.Timer) {
	if old, ok := s.timers[slot]; ok {
		old.Stop()
	}
	s.timers[slot] = t
}

// clear stops and forgets the timer in slot.
func (s *unitState) clear(slot timerSlot) {
	if old, ok := s.timers[slot]; ok {
		old.Stop()
		delete(s.timers, slot)
	}
}

// cancel stops the whole chain and invalidates callbacks already in flight.
func (s *unitState) cancel() uint64 {
	for slot, t := range s.timers {
		t.Stop()
		delete(s.timers, slot)
	}
	s.gen++
	return s.gen
}

// delayUntil returns how long to wait from now until at. It is never zero:
// a zero delay would make the fake clock run the callback inline while the
// caller still holds the engine lock.
func delayUntil(c clock.Clock, at time.Time) time.Duration {
	d := at.Sub(c.Now())
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}
