package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"stockmind/internal/clock"
	"stockmind/internal/domain"
)

// SequencerConfig holds the timing of the agent activation sequence.
type SequencerConfig struct {
	Stagger      time.Duration // delay between consecutive agent activations
	TickInterval time.Duration // progress tick period once an agent is working
	Step         int           // progress added per tick
	Cutoff       time.Duration // ticking stops this long after activation
}

// DefaultSequencerConfig returns the stock timing: 500ms stagger, +10 every
// 200ms, cut off 2s after activation.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		Stagger:      500 * time.Millisecond,
		TickInterval: 200 * time.Millisecond,
		Step:         10,
		Cutoff:       2 * time.Second,
	}
}

// Sequencer activates a fixed, ordered set of agents with a stagger and then
// animates each agent's progress independently.
//
// An agent whose ticks cannot reach 100 before the cutoff is left working
// with its ticking stopped; that is the expected outcome for slow steps.
type Sequencer struct {
	mu    sync.Mutex
	clock clock.Clock
	cfg   SequencerConfig
	pub   Publisher
	log   *slog.Logger

	order []string
	units map[string]*unitState
}

// NewSequencer creates a Sequencer for agents in activation order. A nil
// publisher is allowed.
func NewSequencer(agents []domain.AgentSpec, cfg SequencerConfig, clk clock.Clock, pub Publisher, log *slog.Logger) *Sequencer {
	if pub == nil {
		pub = nopPublisher{}
	}
	s := &Sequencer{
		clock: clk,
		cfg:   cfg,
		pub:   pub,
		log:   log.With("component", "sequencer"),
		units: make(map[string]*unitState, len(agents)),
	}
	for _, a := range agents {
		s.order = append(s.order, a.ID)
		s.units[a.ID] = newUnitState(domain.Unit{
			ID:          a.ID,
			Kind:        domain.KindAgent,
			Name:        a.Name,
			Description: a.Task,
			Status:      domain.StatusIdle,
		})
	}
	return s
}

// Activate starts a new activation sequence for query. An empty query is a
// no-op and returns false.
//
// Any sequence already in flight is cancelled first and every agent returns
// to idle, so each activation is an idle to working transition. Agent i is
// activated i*Stagger after the call.
func (s *Sequencer) Activate(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return false
	}

	var immediate []func()

	s.mu.Lock()
	for i, id := range s.order {
		st := s.units[id]
		gen := st.cancel()
		if st.unit.Status != domain.StatusIdle || st.unit.Progress != 0 {
			st.unit.Status = domain.StatusIdle
			st.unit.Progress = 0
			s.pub.Publish(st.unit)
		}

		id := id
		fire := func() { s.activate(id, gen) }
		delay := time.Duration(i) * s.cfg.Stagger
		if delay <= 0 {
			immediate = append(immediate, fire)
			continue
		}
		st.set(slotActivate, s.clock.AfterFunc(delay, fire))
	}
	s.mu.Unlock()

	s.log.Info("agent sequence started", "query", query, "agents", len(s.order))

	for _, fire := range immediate {
		fire()
	}
	return true
}

// Snapshot returns the agents in activation order.
func (s *Sequencer) Snapshot() []domain.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Unit, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.units[id].unit)
	}
	return out
}

// Agent returns the current state of a single agent.
func (s *Sequencer) Agent(id string) (domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.units[id]
	if !ok {
		return domain.Unit{}, fmt.Errorf("agent %q: %w", id, ErrUnknownUnit)
	}
	return st.unit, nil
}

func (s *Sequencer) activate(id string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.units[id]
	if st.gen != gen {
		return
	}
	delete(st.timers, slotActivate)

	now := s.clock.Now()
	st.unit.Status = domain.StatusWorking
	st.unit.Progress = 0
	st.unit.StartedAt = now
	s.pub.Publish(st.unit)

	s.log.Debug("agent activated", "agent", id)
	s.scheduleTickLocked(st, gen, now, 1)
}

// scheduleTickLocked arms tick n of the chain that started at activatedAt.
// Ticks are anchored to the activation time so they do not drift; a tick
// that would land past the cutoff is never scheduled.
func (s *Sequencer) scheduleTickLocked(st *unitState, gen uint64, activatedAt time.Time, n int) {
	offset := time.Duration(n) * s.cfg.TickInterval
	if offset > s.cfg.Cutoff {
		delete(st.timers, slotTick)
		if st.unit.Status == domain.StatusWorking {
			s.log.Debug("agent ticker cut off", "agent", st.unit.ID, "progress", st.unit.Progress)
		}
		return
	}

	id := st.unit.ID
	st.set(slotTick, s.clock.AfterFunc(delayUntil(s.clock, activatedAt.Add(offset)), func() {
		s.tick(id, gen, activatedAt, n)
	}))
}

func (s *Sequencer) tick(id string, gen uint64, activatedAt time.Time, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.units[id]
	if st.gen != gen || st.unit.Status != domain.StatusWorking {
		return
	}

	st.unit.Progress = min(st.unit.Progress+s.cfg.Step, 100)
	if st.unit.Progress == 100 {
		st.unit.Status = domain.StatusComplete
		delete(st.timers, slotTick)
		s.pub.Publish(st.unit)
		s.log.Debug("agent complete", "agent", id)
		return
	}
	s.pub.Publish(st.unit)
	s.scheduleTickLocked(st, gen, activatedAt, n+1)
}
