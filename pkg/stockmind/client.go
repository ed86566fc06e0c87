// Package stockmind is a Go SDK for the stockmind-server HTTP API.
package stockmind

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockmind/internal/domain"
	"stockmind/internal/httpapi"
	"stockmind/internal/market"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Detail  string // set for refused workflow triggers
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

// Client provides a Go SDK for interacting with the stockmind-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new stockmind API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Detail: e.Detail}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Units returns the current agents and workflows.
func (c *Client) Units(ctx context.Context) (httpapi.UnitsResponse, error) {
	var out httpapi.UnitsResponse
	err := c.do(ctx, http.MethodGet, "/api/units", nil, &out)
	return out, err
}

// Activate starts an agent sequence for query. It returns false for an empty
// query.
func (c *Client) Activate(ctx context.Context, query string) (bool, error) {
	var out httpapi.ActivateResponse
	err := c.do(ctx, http.MethodPost, "/api/agents/activate", httpapi.ActivateRequest{Query: query}, &out)
	return out.Started, err
}

// Trigger starts a workflow run and returns its run ID.
func (c *Client) Trigger(ctx context.Context, workflowID, symbol string) (string, error) {
	var out httpapi.TriggerResponse
	err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(workflowID)+"/trigger",
		httpapi.TriggerRequest{Symbol: symbol}, &out)
	return out.RunID, err
}

// Workflow returns the state of one workflow.
func (c *Client) Workflow(ctx context.Context, workflowID string) (domain.Unit, error) {
	var out domain.Unit
	err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(workflowID), nil, &out)
	return out, err
}

// SuggestWebhook returns the configured and suggested webhook URLs of a
// workflow.
func (c *Client) SuggestWebhook(ctx context.Context, workflowID string) (httpapi.SuggestedWebhookResponse, error) {
	var out httpapi.SuggestedWebhookResponse
	err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(workflowID)+"/webhook", nil, &out)
	return out, err
}

// Settings returns every stored setting with secrets masked.
func (c *Client) Settings(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out)
	return out, err
}

// Setting returns one setting.
func (c *Client) Setting(ctx context.Context, key string) (httpapi.SettingResponse, error) {
	var out httpapi.SettingResponse
	err := c.do(ctx, http.MethodGet, "/api/settings/"+url.PathEscape(key), nil, &out)
	return out, err
}

// SetSetting stores a setting. The response may carry a validation warning.
func (c *Client) SetSetting(ctx context.Context, key, value string) (httpapi.SettingResponse, error) {
	var out httpapi.SettingResponse
	err := c.do(ctx, http.MethodPut, "/api/settings/"+url.PathEscape(key), httpapi.SettingRequest{Value: value}, &out)
	return out, err
}

// DeleteSetting removes a setting.
func (c *Client) DeleteSetting(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/settings/"+url.PathEscape(key), nil, nil)
}

// Quote fetches a quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var out domain.Quote
	err := c.do(ctx, http.MethodGet, "/api/quote/"+url.PathEscape(symbol), nil, &out)
	return out, err
}

// Search looks up symbols matching keywords.
func (c *Client) Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	var out httpapi.SearchResponse
	err := c.do(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(keywords), nil, &out)
	return out.Matches, err
}

// Heatmap fetches the market heat map.
func (c *Client) Heatmap(ctx context.Context) (*market.Heatmap, error) {
	var out market.Heatmap
	if err := c.do(ctx, http.MethodGet, "/api/heatmap", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Overview fetches the market overview sorted by percent change.
func (c *Client) Overview(ctx context.Context) ([]domain.Quote, error) {
	var out []domain.Quote
	err := c.do(ctx, http.MethodGet, "/api/overview", nil, &out)
	return out, err
}

// Predict fetches simulated forecasts for symbol.
func (c *Client) Predict(ctx context.Context, symbol string) (market.Forecast, error) {
	var out market.Forecast
	err := c.do(ctx, http.MethodGet, "/api/predictions/"+url.PathEscape(symbol), nil, &out)
	return out, err
}

// History fetches a simulated price series for symbol over rangeName
// (1D, 1W, 1M, 3M or 1Y).
func (c *Client) History(ctx context.Context, symbol, rangeName string) ([]market.ChartPoint, error) {
	var out httpapi.HistoryResponse
	path := "/api/history/" + url.PathEscape(symbol) + "?range=" + url.QueryEscape(rangeName)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Points, err
}

// Runs lists recent workflow runs, optionally for one workflow.
func (c *Client) Runs(ctx context.Context, workflowID string, limit int) ([]domain.RunRecord, error) {
	q := url.Values{}
	if workflowID != "" {
		q.Set("workflow", workflowID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out httpapi.RunsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Runs, err
}

// Run fetches a single run.
func (c *Client) Run(ctx context.Context, runID string) (domain.RunRecord, error) {
	var out domain.RunRecord
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, &out)
	return out, err
}

// Export archives the runs of date (YYYY-MM-DD, empty for today) and returns
// how many were written.
func (c *Client) Export(ctx context.Context, date string) (int, error) {
	var out httpapi.ExportResponse
	err := c.do(ctx, http.MethodPost, "/api/runs/export", httpapi.ExportRequest{Date: date}, &out)
	return out.Count, err
}

// Execution fetches an n8n execution document through the server.
func (c *Client) Execution(ctx context.Context, executionID string) (json.RawMessage, error) {
	var out httpapi.ExecutionResponse
	err := c.do(ctx, http.MethodGet, "/api/executions/"+url.PathEscape(executionID), nil, &out)
	return out.Execution, err
}
