// Package domain holds the core types shared across stockmind: progress
// units (agents and workflows), quotes, and workflow run records.
package domain

import "time"

// UnitKind distinguishes the two unit collections.
type UnitKind string

const (
	KindAgent    UnitKind = "agent"
	KindWorkflow UnitKind = "workflow"
)

// Status is the state of a unit. Agents use idle/working/complete;
// workflows use idle/running/completed/error.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusWorking   Status = "working"
	StatusComplete  Status = "complete"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Active reports whether the status is one in which progress advances.
func (s Status) Active() bool {
	return s == StatusWorking || s == StatusRunning
}

// Unit is the observable state of a single agent or workflow.
type Unit struct {
	ID          string    `json:"id"`
	Kind        UnitKind  `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"` // 0-100
	StartedAt   time.Time `json:"startedAt,omitzero"`
	RunID       string    `json:"runId,omitempty"` // workflows only, last run
}

// AgentType is the role of an agent in the activation sequence.
type AgentType string

const (
	AgentDataCollector AgentType = "data-collector"
	AgentAnalyzer      AgentType = "analyzer"
	AgentPredictor     AgentType = "predictor"
	AgentRAG           AgentType = "rag-agent"
)

// AgentSpec is the fixed identity of an agent.
type AgentSpec struct {
	ID   string
	Name string
	Type AgentType
	Task string
}

// WorkflowSpec is the fixed identity of a webhook-backed workflow.
type WorkflowSpec struct {
	ID             string
	Name           string
	Description    string
	RequiresSymbol bool
}

// DefaultAgents returns the agent roster in activation order.
func DefaultAgents() []AgentSpec {
	return []AgentSpec{
		{ID: "data-agent", Name: "Data Collector", Type: AgentDataCollector, Task: "Gathering real-time market data"},
		{ID: "analysis-agent", Name: "Market Analyzer", Type: AgentAnalyzer, Task: "Analyzing technical indicators"},
		{ID: "prediction-agent", Name: "AI Predictor", Type: AgentPredictor, Task: "Generating price predictions"},
		{ID: "rag-agent", Name: "Knowledge Agent", Type: AgentRAG, Task: "Retrieving external insights"},
	}
}

// DefaultWorkflows returns the workflow roster. Only the risk monitor runs
// without a selected symbol.
func DefaultWorkflows() []WorkflowSpec {
	return []WorkflowSpec{
		{ID: "stock-analysis", Name: "Deep Stock Analysis", Description: "Comprehensive analysis using multiple AI agents and data sources", RequiresSymbol: true},
		{ID: "sentiment-tracker", Name: "Social Sentiment Tracker", Description: "Monitor Reddit, Twitter, and news sentiment for selected stock", RequiresSymbol: true},
		{ID: "earnings-predictor", Name: "Earnings Impact Predictor", Description: "Analyze earnings calls and predict stock price impact", RequiresSymbol: true},
		{ID: "risk-monitor", Name: "Risk Alert System", Description: "Monitor portfolio risk and send real-time alerts", RequiresSymbol: false},
	}
}

// Quote is a point-in-time price summary for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	Source        string    `json:"source"` // "alphavantage", "alpaca", "demo"
	AsOf          time.Time `json:"asOf"`
}

// SymbolMatch is a single symbol search hit.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Region   string `json:"region,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// RunRecord is the persisted outcome of one workflow run.
type RunRecord struct {
	RunID      string    `json:"runId"`
	WorkflowID string    `json:"workflowId"`
	Symbol     string    `json:"symbol,omitempty"`
	Status     Status    `json:"status"` // completed or error
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
}
