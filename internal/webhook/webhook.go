// Package webhook delivers best-effort workflow notifications to
// user-supplied HTTP endpoints. Delivery is judged at the transport level
// only: the response status and body are never interpreted.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Source tags every payload sent by this service.
const Source = "stockmind-ai"

// Context is free-form caller context forwarded with a payload.
type Context struct {
	UserAgent string `json:"userAgent"`
	Referrer  string `json:"referrer"`
}

// Payload is the JSON body posted to a workflow webhook.
type Payload struct {
	Symbol       string    `json:"symbol,omitempty"`
	APIKey       string    `json:"apiKey,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	WorkflowType string    `json:"workflowType"`
	Source       string    `json:"source"`
	Context      Context   `json:"context"`
	MarketData   any       `json:"marketData,omitempty"`
}

// Result is the outcome of one delivery attempt. Err is informational and
// set only when TransportOK is false.
type Result struct {
	TransportOK bool
	Err         error
}

// Notifier posts a payload to url exactly once.
type Notifier interface {
	Notify(ctx context.Context, url string, p Payload) Result
}

// HTTPNotifier is a Notifier over net/http.
type HTTPNotifier struct {
	client    *http.Client
	userAgent string
}

// NewHTTPNotifier creates a notifier. A zero timeout means the call may
// wait forever; cancellation still follows the context passed to Notify.
func NewHTTPNotifier(timeout time.Duration, userAgent string) *HTTPNotifier {
	return &HTTPNotifier{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Notify posts p as JSON. Any HTTP response, whatever its status, counts as
// a transport-level success.
func (n *HTTPNotifier) Notify(ctx context.Context, url string, p Payload) Result {
	body, err := json.Marshal(p)
	if err != nil {
		return Result{Err: fmt.Errorf("encoding payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return Result{TransportOK: true}
}
