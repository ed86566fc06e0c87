package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stockmind/internal/domain"
	"stockmind/internal/engine"
	"stockmind/internal/live"
	"stockmind/internal/market"
	"stockmind/internal/quote"
	"stockmind/internal/settings"
	"stockmind/internal/store"
	"stockmind/internal/webhook"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
	eventBuffer      = 256
	keepAlive        = 15 * time.Second
)

// Deps are the collaborators behind the API. Market, Predictor and Archive
// may be nil; their routes then answer 503.
type Deps struct {
	Agents    *engine.Sequencer
	Workflows *engine.WorkflowEngine
	Settings  *settings.Store
	Board     *live.Board
	Quotes    quote.Provider
	Market    *market.Service
	Predictor *market.Predictor
	Runs      store.RunStore
	Archive   store.RunArchive
	Log       *slog.Logger
}

// Server serves the stockmind HTTP API.
type Server struct {
	agents    *engine.Sequencer
	workflows *engine.WorkflowEngine
	settings  *settings.Store
	board     *live.Board
	quotes    quote.Provider
	market    *market.Service
	predictor *market.Predictor
	runs      store.RunStore
	archive   store.RunArchive
	log       *slog.Logger
}

// NewServer creates a new HTTP API server.
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		agents:    d.Agents,
		workflows: d.Workflows,
		settings:  d.Settings,
		board:     d.Board,
		quotes:    d.Quotes,
		market:    d.Market,
		predictor: d.Predictor,
		runs:      d.Runs,
		archive:   d.Archive,
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/units", s.handleUnits)
	mux.HandleFunc("POST /api/agents/activate", s.handleActivate)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/trigger", s.handleTrigger)
	mux.HandleFunc("GET /api/workflows/{id}/webhook", s.handleSuggestWebhook)
	mux.HandleFunc("GET /api/settings", s.handleSettings)
	mux.HandleFunc("GET /api/settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /api/settings/{key}", s.handlePutSetting)
	mux.HandleFunc("DELETE /api/settings/{key}", s.handleDeleteSetting)
	mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/heatmap", s.handleHeatmap)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/predictions/{symbol}", s.handlePredictions)
	mux.HandleFunc("GET /api/history/{symbol}", s.handleHistory)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("POST /api/runs/export", s.handleExport)
	mux.HandleFunc("GET /api/executions/{id}", s.handleExecution)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// maskSecret hides all but the last four characters of a credential.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

func isSecret(key string) bool {
	return key == settings.KeyStockAPIKey
}

func maskValue(key, value string) string {
	if isSecret(key) {
		return maskSecret(value)
	}
	return value
}

func maskMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = maskValue(k, v)
	}
	return out
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, UnitsResponse{
		Agents:    s.agents.Snapshot(),
		Workflows: s.workflows.Snapshot(),
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started := s.agents.Activate(req.Query)
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	writeJSONStatus(w, status, ActivateResponse{Started: started})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	u, err := s.workflows.Workflow(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, u)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req TriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.workflows.Trigger(id, req.Symbol)
	if err != nil {
		var pe *engine.PreconditionError
		switch {
		case errors.As(err, &pe):
			writeJSONStatus(w, http.StatusBadRequest, PreconditionResponse{Error: pe.Reason, Detail: pe.Detail})
		case errors.Is(err, engine.ErrUnknownUnit):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, engine.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	writeJSONStatus(w, http.StatusAccepted, TriggerResponse{
		RunID:    runID,
		Workflow: id,
		Symbol:   strings.ToUpper(strings.TrimSpace(req.Symbol)),
	})
}

func (s *Server) handleSuggestWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.workflows.Workflow(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	resp := SuggestedWebhookResponse{
		Workflow:   id,
		Configured: s.settings.WebhookURL(id),
	}
	if base := s.settings.N8nBaseURL(); base != "" {
		resp.Suggested = webhook.GenerateWebhookURL(base, id)
	}
	writeJSON(w, resp)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, maskMap(s.settings.Snapshot()))
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := s.settings.Get(key)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, SettingResponse{Key: key, Value: maskValue(key, v)})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req SettingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value := strings.TrimSpace(req.Value)

	resp := SettingResponse{Key: key, Value: maskValue(key, value)}
	if value != "" && (strings.HasPrefix(key, "webhook.") || key == settings.KeyN8nBaseURL) {
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an http(s) URL", key))
			return
		}
		if key != settings.KeyN8nBaseURL && !webhook.IsValidWebhookURL(value) {
			resp.Warning = "URL does not look like an n8n webhook"
		}
	}

	if err := s.settings.Set(key, value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("setting updated", "key", key)
	writeJSON(w, resp)
}

func (s *Server) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.settings.Delete(key); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func quoteStatus(err error) int {
	switch {
	case errors.Is(err, quote.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, quote.ErrNoCredential):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, quoteStatus(err), err.Error())
		return
	}
	writeJSON(w, q)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	matches, err := s.quotes.Search(r.Context(), q)
	if err != nil {
		writeError(w, quoteStatus(err), err.Error())
		return
	}
	if matches == nil {
		matches = []domain.SymbolMatch{}
	}
	writeJSON(w, SearchResponse{Query: q, Matches: matches})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeError(w, http.StatusServiceUnavailable, "market data not configured")
		return
	}
	hm, err := s.market.Heatmap(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, hm)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeError(w, http.StatusServiceUnavailable, "market data not configured")
		return
	}
	quotes, err := s.market.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, quotes)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		writeError(w, http.StatusServiceUnavailable, "predictions not configured")
		return
	}
	f, err := s.predictor.Predict(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, f)
}

// handleHistory serves a simulated price series ending at the live quote.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		writeError(w, http.StatusServiceUnavailable, "predictions not configured")
		return
	}
	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "1D"
	}
	q, err := s.quotes.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, quoteStatus(err), err.Error())
		return
	}
	points, err := s.predictor.History(q.Symbol, q.Price, rng)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, HistoryResponse{Symbol: q.Symbol, Range: strings.ToUpper(rng), Points: points})
}

// parseLimit extracts the page size from the "limit" query param.
func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultRunsLimit
	}
	return min(n, maxRunsLimit)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), r.URL.Query().Get("workflow"), parseLimit(r))
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	writeJSON(w, RunsResponse{Runs: runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}
	rec, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil || s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "run archive not configured")
		return
	}
	var req ExportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	day := time.Now().UTC()
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	n, err := store.ExportDay(r.Context(), s.runs, s.archive, day)
	if err != nil {
		s.log.Error("exporting runs", "date", day.Format("2006-01-02"), "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, ExportResponse{Date: day.Format("2006-01-02"), Count: n})
}

func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	client := webhook.NewN8nClient(s.settings.N8nBaseURL())
	doc, err := client.Execution(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrNoBaseURL) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, ExecutionResponse{ID: id, Execution: doc})
}

// handleEvents streams unit and settings changes as server-sent events. The
// first event is a snapshot of every unit.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	units, unitSub, unitCh := s.board.SnapshotAndSubscribe(eventBuffer)
	defer s.board.Unsubscribe(unitSub)
	setSub, setCh := s.settings.Subscribe(eventBuffer)
	defer s.settings.Unsubscribe(setSub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", units); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-unitCh:
			if !ok {
				return
			}
			err = writeEvent(w, "unit", ev.Unit)
		case ev, ok := <-setCh:
			if !ok {
				return
			}
			err = writeEvent(w, "settings", maskEvent(ev))
		case <-ticker.C:
			_, err = fmt.Fprint(w, ": keepalive\n\n")
		}
		if err != nil {
			s.log.Debug("event stream closed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func maskEvent(e settings.Event) settings.Event {
	e.Value = maskValue(e.Key, e.Value)
	if e.Data != nil {
		e.Data = maskMap(e.Data)
	}
	return e
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
