package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockmind/internal/clock"
	"stockmind/internal/domain"
	"stockmind/internal/webhook"
)

// WorkflowConfig holds the timing of a workflow run.
type WorkflowConfig struct {
	TickInterval   time.Duration // progress tick period while running
	Step           int           // progress added per tick
	Ceiling        int           // the ticker never moves progress past this
	CompletedReset time.Duration // completed -> idle delay
	ErrorReset     time.Duration // error -> idle delay
	CallTimeout    time.Duration // zero means the outbound call may hang forever
}

// DefaultWorkflowConfig returns the stock timing: +10 every 500ms up to 90,
// reset 5s after completion and 3s after a transport error, no call timeout.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		TickInterval:   500 * time.Millisecond,
		Step:           10,
		Ceiling:        90,
		CompletedReset: 5 * time.Second,
		ErrorReset:     3 * time.Second,
	}
}

// Endpoints supplies per-trigger configuration. It is read at trigger time
// only.
type Endpoints interface {
	WebhookURL(workflowID string) string
	Credential() string
}

// RunRecorder persists the outcome of finished runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, rec domain.RunRecord) error
}

// MarketDataFunc returns data to attach to a payload for symbol.
type MarketDataFunc func(ctx context.Context, symbol string) (any, error)

// WorkflowOption configures optional WorkflowEngine collaborators.
type WorkflowOption func(*WorkflowEngine)

// WithRunRecorder records every resolved run.
func WithRunRecorder(r RunRecorder) WorkflowOption {
	return func(e *WorkflowEngine) { e.runs = r }
}

// WithMarketData attaches market data to payloads that carry a symbol and a
// credential. Lookup failures are logged and the payload is sent without it.
func WithMarketData(f MarketDataFunc) WorkflowOption {
	return func(e *WorkflowEngine) { e.marketData = f }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(f func() string) WorkflowOption {
	return func(e *WorkflowEngine) { e.newRunID = f }
}

// WithRequestContext sets the user agent and referrer forwarded in payloads.
func WithRequestContext(c webhook.Context) WorkflowOption {
	return func(e *WorkflowEngine) { e.reqCtx = c }
}

// WorkflowEngine runs webhook-backed workflows through
// idle -> running -> completed|error -> idle.
//
// Trigger refuses a workflow that is already running. A trigger that lands
// while the previous run is waiting for its auto-reset cancels that reset.
type WorkflowEngine struct {
	mu        sync.Mutex
	clock     clock.Clock
	cfg       WorkflowConfig
	pub       Publisher
	log       *slog.Logger
	notifier  webhook.Notifier
	endpoints Endpoints

	runs       RunRecorder
	marketData MarketDataFunc
	newRunID   func() string
	reqCtx     webhook.Context

	order []string
	specs map[string]domain.WorkflowSpec
	units map[string]*unitState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkflowEngine creates an engine for the given workflows. A nil
// publisher is allowed.
func NewWorkflowEngine(
	workflows []domain.WorkflowSpec,
	cfg WorkflowConfig,
	clk clock.Clock,
	notifier webhook.Notifier,
	endpoints Endpoints,
	pub Publisher,
	log *slog.Logger,
	opts ...WorkflowOption,
) *WorkflowEngine {
	if pub == nil {
		pub = nopPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &WorkflowEngine{
		clock:     clk,
		cfg:       cfg,
		pub:       pub,
		log:       log.With("component", "workflows"),
		notifier:  notifier,
		endpoints: endpoints,
		newRunID:  uuid.NewString,
		specs:     make(map[string]domain.WorkflowSpec, len(workflows)),
		units:     make(map[string]*unitState, len(workflows)),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, w := range workflows {
		e.order = append(e.order, w.ID)
		e.specs[w.ID] = w
		e.units[w.ID] = newUnitState(domain.Unit{
			ID:          w.ID,
			Kind:        domain.KindWorkflow,
			Name:        w.Name,
			Description: w.Description,
			Status:      domain.StatusIdle,
		})
	}
	return e
}

// Trigger starts a run of workflowID for symbol and returns its run ID.
//
// Precondition failures return a *PreconditionError and leave the workflow
// untouched with no outbound call made. On success the workflow is running
// when Trigger returns and the webhook call proceeds in the background.
func (e *WorkflowEngine) Trigger(workflowID, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.units[workflowID]
	if !ok {
		return "", fmt.Errorf("workflow %q: %w", workflowID, ErrUnknownUnit)
	}
	if st.unit.Status == domain.StatusRunning {
		return "", fmt.Errorf("workflow %q: %w", workflowID, ErrAlreadyRunning)
	}
	if e.ctx.Err() != nil {
		return "", fmt.Errorf("workflow %q: engine closed", workflowID)
	}

	url := e.endpoints.WebhookURL(workflowID)
	if err := checkTrigger(e.specs[workflowID], url, symbol); err != nil {
		return "", err
	}

	gen := st.cancel()
	now := e.clock.Now()
	runID := e.newRunID()

	st.unit.Status = domain.StatusRunning
	st.unit.Progress = 0
	st.unit.StartedAt = now
	st.unit.RunID = runID
	e.pub.Publish(st.unit)
	e.scheduleTickLocked(st, gen, now, 1)

	payload := webhook.Payload{
		Symbol:       symbol,
		APIKey:       e.endpoints.Credential(),
		Timestamp:    now.UTC(),
		WorkflowType: workflowID,
		Source:       webhook.Source,
		Context:      e.reqCtx,
	}

	e.log.Info("workflow triggered", "workflow", workflowID, "symbol", symbol, "run", runID)

	e.wg.Add(1)
	go e.dispatch(workflowID, gen, url, payload)

	return runID, nil
}

// Snapshot returns the workflows in roster order.
func (e *WorkflowEngine) Snapshot() []domain.Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Unit, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.units[id].unit)
	}
	return out
}

// Workflow returns the current state of a single workflow.
func (e *WorkflowEngine) Workflow(id string) (domain.Unit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.units[id]
	if !ok {
		return domain.Unit{}, fmt.Errorf("workflow %q: %w", id, ErrUnknownUnit)
	}
	return st.unit, nil
}

// Close aborts in-flight calls, waits for them to resolve, and rejects
// further triggers. Runs aborted this way resolve as transport errors.
func (e *WorkflowEngine) Close() {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *WorkflowEngine) dispatch(workflowID string, gen uint64, url string, payload webhook.Payload) {
	defer e.wg.Done()

	ctx := e.ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	if e.marketData != nil && payload.Symbol != "" && payload.APIKey != "" {
		md, err := e.marketData(ctx, payload.Symbol)
		if err != nil {
			e.log.Warn("fetching market data for workflow", "workflow", workflowID, "symbol", payload.Symbol, "error", err)
		} else {
			payload.MarketData = md
		}
	}

	res := e.notifier.Notify(ctx, url, payload)
	e.resolve(workflowID, gen, payload.Symbol, res)
}

func (e *WorkflowEngine) resolve(workflowID string, gen uint64, symbol string, res webhook.Result) {
	e.mu.Lock()

	st := e.units[workflowID]
	if st.gen != gen {
		e.mu.Unlock()
		return
	}
	st.clear(slotTick)

	now := e.clock.Now()
	rec := domain.RunRecord{
		RunID:      st.unit.RunID,
		WorkflowID: workflowID,
		Symbol:     symbol,
		StartedAt:  st.unit.StartedAt,
		EndedAt:    now,
	}

	resetAfter := e.cfg.CompletedReset
	if res.TransportOK {
		st.unit.Status = domain.StatusCompleted
		st.unit.Progress = 100
		e.log.Info("workflow delivered", "workflow", workflowID, "run", rec.RunID)
	} else {
		st.unit.Status = domain.StatusError
		st.unit.Progress = 0
		resetAfter = e.cfg.ErrorReset
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		e.log.Warn("workflow delivery failed", "workflow", workflowID, "run", rec.RunID, "error", res.Err)
	}
	rec.Status = st.unit.Status
	e.pub.Publish(st.unit)

	st.set(slotReset, e.clock.AfterFunc(delayUntil(e.clock, now.Add(resetAfter)), func() {
		e.reset(workflowID, gen)
	}))
	e.mu.Unlock()

	if e.runs != nil {
		if err := e.runs.SaveRun(context.Background(), rec); err != nil {
			e.log.Error("saving workflow run", "workflow", workflowID, "run", rec.RunID, "error", err)
		}
	}
}

func (e *WorkflowEngine) reset(workflowID string, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.units[workflowID]
	if st.gen != gen {
		return
	}
	delete(st.timers, slotReset)
	st.unit.Status = domain.StatusIdle
	st.unit.Progress = 0
	e.pub.Publish(st.unit)
}

// scheduleTickLocked arms tick n of a run that started at startedAt. The
// chain ends once progress sits at the ceiling; only resolution moves it on.
func (e *WorkflowEngine) scheduleTickLocked(st *unitState, gen uint64, startedAt time.Time, n int) {
	if st.unit.Progress >= e.cfg.Ceiling {
		delete(st.timers, slotTick)
		return
	}
	id := st.unit.ID
	at := startedAt.Add(time.Duration(n) * e.cfg.TickInterval)
	st.set(slotTick, e.clock.AfterFunc(delayUntil(e.clock, at), func() {
		e.tick(id, gen, startedAt, n)
	}))
}

func (e *WorkflowEngine) tick(workflowID string, gen uint64, startedAt time.Time, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.units[workflowID]
	if st.gen != gen || st.unit.Status != domain.StatusRunning {
		return
	}
	st.unit.Progress = min(st.unit.Progress+e.cfg.Step, e.cfg.Ceiling)
	e.pub.Publish(st.unit)
	e.scheduleTickLocked(st, gen, startedAt, n+1)
}
