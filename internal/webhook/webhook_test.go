package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPNotifierPostsJSON(t *testing.T) {
	var got Payload
	var contentType, userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
	}))
	defer srv.Close()

	ts := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	n := NewHTTPNotifier(0, "stockmind-test")
	res := n.Notify(context.Background(), srv.URL+"/webhook/stock-analysis", Payload{
		Symbol:       "AAPL",
		APIKey:       "demo",
		Timestamp:    ts,
		WorkflowType: "stock-analysis",
		Source:       Source,
		Context:      Context{UserAgent: "cli", Referrer: "http://localhost"},
	})

	if !res.TransportOK {
		t.Fatalf("TransportOK = false, err = %v", res.Err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}
	if userAgent != "stockmind-test" {
		t.Errorf("User-Agent = %q, want %q", userAgent, "stockmind-test")
	}
	if got.Symbol != "AAPL" || got.WorkflowType != "stock-analysis" || got.Source != Source {
		t.Errorf("payload = %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.Context.Referrer != "http://localhost" {
		t.Errorf("Context.Referrer = %q", got.Context.Referrer)
	}
}

func TestHTTPNotifierIgnoresResponseStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow not active", http.StatusNotFound)
	}))
	defer srv.Close()

	res := NewHTTPNotifier(0, "").Notify(context.Background(), srv.URL, Payload{WorkflowType: "risk-monitor"})
	if !res.TransportOK {
		t.Errorf("TransportOK = false for a 404 response, want true")
	}
}

func TestHTTPNotifierTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewHTTPNotifier(time.Second, "").Notify(context.Background(), url, Payload{})
	if res.TransportOK {
		t.Fatal("TransportOK = true for a closed server")
	}
	if res.Err == nil {
		t.Error("Err = nil for a transport failure")
	}
}

func TestHTTPNotifierInvalidURL(t *testing.T) {
	res := NewHTTPNotifier(0, "").Notify(context.Background(), "://not a url", Payload{})
	if res.TransportOK {
		t.Error("TransportOK = true for an invalid URL")
	}
}

func TestIsValidWebhookURL(t *testing.T) {
	cases := map[string]bool{
		"https://n8n.example.com/webhook/stock-analysis":      true,
		"https://n8n.example.com/webhook-test/risk-monitor":   true,
		"https://n8n.example.com/api/v1/workflows":            false,
		"not a url":                                           false,
		"/webhook/relative":                                   false,
	}
	for raw, want := range cases {
		if got := IsValidWebhookURL(raw); got != want {
			t.Errorf("IsValidWebhookURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestGenerateWebhookURL(t *testing.T) {
	got := GenerateWebhookURL("https://n8n.example.com/", "sentiment-tracker")
	want := "https://n8n.example.com/webhook/sentiment-tracker"
	if got != want {
		t.Errorf("GenerateWebhookURL = %q, want %q", got, want)
	}
}

func TestN8nClientExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/executions/42" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":"42","finished":true}`))
	}))
	defer srv.Close()

	raw, err := NewN8nClient(srv.URL+"/").Execution(context.Background(), "42")
	if err != nil {
		t.Fatalf("Execution: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["finished"] != true {
		t.Errorf("finished = %v, want true", doc["finished"])
	}

	if _, err := NewN8nClient(srv.URL).Execution(context.Background(), "7"); err == nil {
		t.Error("expected error for unknown execution")
	}
}

func TestN8nClientWithoutBaseURL(t *testing.T) {
	_, err := NewN8nClient("").Execution(context.Background(), "1")
	if !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("err = %v, want ErrNoBaseURL", err)
	}
}
