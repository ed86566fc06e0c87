package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"stockmind/internal/clock"
	"stockmind/internal/domain"
	"stockmind/internal/webhook"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// published is one Publish call stamped with the fake time it happened at.
type published struct {
	at   time.Duration
	unit domain.Unit
}

type recorder struct {
	mu    sync.Mutex
	clock *clock.FakeClock
	items []published
}

func newRecorder(c *clock.FakeClock) *recorder { return &recorder{clock: c} }

func (r *recorder) Publish(u domain.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, published{at: r.clock.Now().Sub(t0), unit: u})
}

func (r *recorder) forUnit(id string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, p := range r.items {
		if p.unit.ID == id {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// stubEndpoints serves webhook URLs from a map.
type stubEndpoints struct {
	urls   map[string]string
	apiKey string
}

func (s stubEndpoints) WebhookURL(id string) string { return s.urls[id] }
func (s stubEndpoints) Credential() string          { return s.apiKey }

// stubNotifier blocks every call until a result is pushed on results.
type stubNotifier struct {
	mu       sync.Mutex
	urls     []string
	payloads []webhook.Payload
	results  chan webhook.Result
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{results: make(chan webhook.Result, 4)}
}

func (n *stubNotifier) Notify(ctx context.Context, url string, p webhook.Payload) webhook.Result {
	n.mu.Lock()
	n.urls = append(n.urls, url)
	n.payloads = append(n.payloads, p)
	n.mu.Unlock()

	select {
	case r := <-n.results:
		return r
	case <-ctx.Done():
		return webhook.Result{Err: ctx.Err()}
	}
}

func (n *stubNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.urls)
}

func (n *stubNotifier) payload(i int) webhook.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.payloads[i]
}

// advanceSteps moves the clock forward in fixed steps.
func advanceSteps(c *clock.FakeClock, total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		c.Advance(step)
	}
}
