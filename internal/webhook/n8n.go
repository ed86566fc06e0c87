package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoBaseURL is returned when an n8n API call is made without a
// configured instance URL.
var ErrNoBaseURL = errors.New("n8n base URL not configured")

// IsValidWebhookURL reports whether raw parses as a URL whose path looks like
// an n8n production or test webhook.
func IsValidWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return strings.Contains(u.Path, "/webhook/") || strings.Contains(u.Path, "/webhook-test/")
}

// GenerateWebhookURL suggests the production webhook URL for a workflow type
// on an n8n instance.
func GenerateWebhookURL(baseURL, workflowType string) string {
	return strings.TrimRight(baseURL, "/") + "/webhook/" + workflowType
}

// N8nClient reads execution status from an n8n instance's REST API.
type N8nClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewN8nClient creates a client for the instance at baseURL.
func NewN8nClient(baseURL string) *N8nClient {
	return &N8nClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Execution fetches the raw JSON status document of an execution.
func (c *N8nClient) Execution(ctx context.Context, executionID string) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrNoBaseURL
	}

	endpoint := c.baseURL + "/api/v1/executions/" + url.PathEscape(executionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching execution %s: %w", executionID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading execution %s: %w", executionID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("execution %s: unexpected status %d", executionID, resp.StatusCode)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("execution %s: response is not JSON", executionID)
	}
	return json.RawMessage(data), nil
}
