package stockmind

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func newStub(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestTriggerSuccess(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/workflows/stock-analysis/trigger" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["symbol"] != "AAPL" {
			t.Errorf("symbol = %q, want AAPL", body["symbol"])
		}
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"runId":"run-1","workflow":"stock-analysis","symbol":"AAPL"}`)
	})

	id, err := c.Trigger(context.Background(), "stock-analysis", "AAPL")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if id != "run-1" {
		t.Errorf("run ID = %q, want %q", id, "run-1")
	}
}

func TestTriggerPreconditionError(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"webhook URL required","detail":"Please set the webhook URL for Deep Stock Analysis"}`)
	})

	_, err := c.Trigger(context.Background(), "stock-analysis", "AAPL")
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("err = %v, want 400 APIError", err)
	}
	ae := err.(*APIError)
	if ae.Message != "webhook URL required" {
		t.Errorf("Message = %q", ae.Message)
	}
	if ae.Detail == "" {
		t.Error("Detail is empty")
	}
}

func TestErrorWithoutBody(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Quote(context.Background(), "AAPL")
	if !IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("err = %v, want 502", err)
	}
	if got := err.(*APIError).Message; got != "Bad Gateway" {
		t.Errorf("Message = %q, want %q", got, "Bad Gateway")
	}
}

func TestRunsQuery(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("workflow"); got != "risk-monitor" {
			t.Errorf("workflow = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		io.WriteString(w, `{"runs":[{"runId":"a","workflowId":"risk-monitor","status":"completed"}]}`)
	})
	runs, err := c.Runs(context.Background(), "risk-monitor", 5)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "a" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestDeleteSettingNoContent(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/settings/webhook.risk-monitor" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.DeleteSetting(context.Background(), "webhook.risk-monitor"); err != nil {
		t.Errorf("DeleteSetting: %v", err)
	}
}

func TestHistoryQuery(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history/AAPL" || r.URL.Query().Get("range") != "1M" {
			t.Errorf("got %s", r.URL)
		}
		io.WriteString(w, `{"symbol":"AAPL","range":"1M","points":[{"label":"1","price":170.1,"volume":1200000},{"label":"2","price":175.84,"volume":2400000}]}`)
	})
	points, err := c.History(context.Background(), "AAPL", "1M")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(points) != 2 || points[1].Price != 175.84 {
		t.Errorf("points = %+v", points)
	}
}
