// Package httpapi provides the HTTP REST API for the stockmind dashboard,
// serving the same unit state the TUI client mirrors over gRPC.
package httpapi

import (
	"encoding/json"

	"stockmind/internal/domain"
	"stockmind/internal/market"
)

// UnitsResponse is the body of GET /api/units.
type UnitsResponse struct {
	Agents    []domain.Unit `json:"agents"`
	Workflows []domain.Unit `json:"workflows"`
}

// ActivateRequest is the body of POST /api/agents/activate.
type ActivateRequest struct {
	Query string `json:"query"`
}

// ActivateResponse reports whether a sequence was started.
type ActivateResponse struct {
	Started bool `json:"started"`
}

// TriggerRequest is the body of POST /api/workflows/{id}/trigger.
type TriggerRequest struct {
	Symbol string `json:"symbol"`
}

// TriggerResponse is returned with 202 Accepted once a run is in flight.
type TriggerResponse struct {
	RunID    string `json:"runId"`
	Workflow string `json:"workflow"`
	Symbol   string `json:"symbol,omitempty"`
}

// PreconditionResponse is the 400 body for a refused trigger.
type PreconditionResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// SettingRequest is the body of PUT /api/settings/{key}.
type SettingRequest struct {
	Value string `json:"value"`
}

// SettingResponse is a single setting. Secret values are masked.
type SettingResponse struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Warning string `json:"warning,omitempty"`
}

// SuggestedWebhookResponse is the body of GET /api/workflows/{id}/webhook.
type SuggestedWebhookResponse struct {
	Workflow   string `json:"workflow"`
	Configured string `json:"configured,omitempty"`
	Suggested  string `json:"suggested,omitempty"`
}

// SearchResponse wraps symbol search results.
type SearchResponse struct {
	Query   string               `json:"query"`
	Matches []domain.SymbolMatch `json:"matches"`
}

// HistoryResponse is the body of GET /api/history/{symbol}.
type HistoryResponse struct {
	Symbol string              `json:"symbol"`
	Range  string              `json:"range"`
	Points []market.ChartPoint `json:"points"`
}

// RunsResponse wraps a page of run history.
type RunsResponse struct {
	Runs []domain.RunRecord `json:"runs"`
}

// ExportRequest is the body of POST /api/runs/export. An empty date means
// today (UTC).
type ExportRequest struct {
	Date string `json:"date"`
}

// ExportResponse reports how many runs were archived.
type ExportResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ExecutionResponse passes an n8n execution document through.
type ExecutionResponse struct {
	ID        string          `json:"id"`
	Execution json.RawMessage `json:"execution"`
}
