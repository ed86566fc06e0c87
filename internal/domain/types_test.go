package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStatusActive(t *testing.T) {
	active := []Status{StatusWorking, StatusRunning}
	for _, s := range active {
		if !s.Active() {
			t.Errorf("%q.Active() = false, want true", s)
		}
	}
	inactive := []Status{StatusIdle, StatusComplete, StatusCompleted, StatusError}
	for _, s := range inactive {
		if s.Active() {
			t.Errorf("%q.Active() = true, want false", s)
		}
	}
}

func TestDefaultAgents(t *testing.T) {
	agents := DefaultAgents()
	if len(agents) != 4 {
		t.Fatalf("len(DefaultAgents()) = %d, want 4", len(agents))
	}
	wantIDs := []string{"data-agent", "analysis-agent", "prediction-agent", "rag-agent"}
	for i, id := range wantIDs {
		if agents[i].ID != id {
			t.Errorf("agents[%d].ID = %q, want %q", i, agents[i].ID, id)
		}
	}
	if agents[3].Type != AgentRAG {
		t.Errorf("agents[3].Type = %q, want %q", agents[3].Type, AgentRAG)
	}
}

func TestDefaultWorkflows(t *testing.T) {
	seen := make(map[string]bool)
	for _, w := range DefaultWorkflows() {
		if seen[w.ID] {
			t.Errorf("duplicate workflow id %q", w.ID)
		}
		seen[w.ID] = true

		wantSymbol := w.ID != "risk-monitor"
		if w.RequiresSymbol != wantSymbol {
			t.Errorf("%s.RequiresSymbol = %v, want %v", w.ID, w.RequiresSymbol, wantSymbol)
		}
	}
	if len(seen) != 4 {
		t.Errorf("got %d workflows, want 4", len(seen))
	}
}

func TestUnitJSONOmitsUnsetStart(t *testing.T) {
	idle, err := json.Marshal(Unit{ID: "data-agent", Kind: KindAgent, Status: StatusIdle})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(idle), "startedAt") {
		t.Errorf("idle unit JSON = %s, want no startedAt", idle)
	}

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	busy, _ := json.Marshal(Unit{ID: "data-agent", Kind: KindAgent, Status: StatusWorking, StartedAt: start})
	if !strings.Contains(string(busy), `"startedAt":"2026-03-02T14:30:00Z"`) {
		t.Errorf("working unit JSON = %s, want startedAt", busy)
	}
}
