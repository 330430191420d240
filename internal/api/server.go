package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/scheduler"
	"github.com/samijaber1/aegis-budget/internal/slo"
	"github.com/samijaber1/aegis-budget/internal/storage"
)

const (
	defaultPushInterval = 60 * time.Second
	streamWriteTimeout  = 5 * time.Second
	maxLookbackHours    = 24 * 30
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// Options configures the API server
type Options struct {
	Addr string
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler
	// PushInterval is the period at which /v1/stream resends the latest snapshot
	PushInterval time.Duration
	Logger       *zap.Logger
}

// Server is the HTTP API server
type Server struct {
	monitor      *scheduler.Monitor
	store        storage.HistoryStore
	logger       *zap.Logger
	pushInterval time.Duration
	handler      http.Handler
	server       *http.Server
	now          func() time.Time
}

// NewServer creates a new API server. A nil store disables the history endpoints.
func NewServer(monitor *scheduler.Monitor, store storage.HistoryStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pushInterval := opts.PushInterval
	if pushInterval <= 0 {
		pushInterval = defaultPushInterval
	}

	s := &Server{
		monitor:      monitor,
		store:        store,
		logger:       logger.Named("api"),
		pushInterval: pushInterval,
		now:          time.Now,
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	// SLO and reports
	mux.HandleFunc("/v1/slo", s.handleSLO)
	mux.HandleFunc("/v1/report", s.handleReport)
	mux.HandleFunc("/v1/latest", s.handleLatest)
	mux.HandleFunc("/v1/collect", s.handleCollect)
	mux.HandleFunc("/v1/stream", s.handleStream)

	// History
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/v1/trend", s.handleTrend)
	mux.HandleFunc("/v1/alerts", s.handleAlerts)

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}

	s.handler = loggingMiddleware(s.logger, mux)
	s.server = &http.Server{
		Addr:        opts.Addr,
		Handler:     s.handler,
		ReadTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz. The server is ready once a tick completed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ReadyResponse{Reasons: []string{}}

	snap, ok := s.monitor.Cache().Get()
	if ok {
		resp.Ready = true
		updated := snap.UpdatedAt
		resp.LastUpdated = &updated
		if snap.IsStale(s.now()) {
			resp.Reasons = append(resp.Reasons, "latest report is stale")
		}
	} else {
		resp.Reasons = append(resp.Reasons, "no report collected yet")
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// handleSLO handles GET /v1/slo
func (s *Server) handleSLO(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	def := s.monitor.Engine().Definition()
	rules := def.Rules()
	if rules == nil {
		rules = slo.AlertRules{}
	}

	respondJSON(w, http.StatusOK, SLOResponse{
		Service:             def.Service,
		SLOTarget:           def.SLOTarget(),
		SLOTargetPercentage: def.TargetPercentage(),
		BudgetPercentage:    def.ErrorBudgetPolicy.BudgetPercentage,
		Query:               def.AvailabilityQuery(),
		AlertRules:          rules,
		Windows:             eval.WindowLabels(),
	})
}

// handleReport handles GET /v1/report?lookback=24. Reports are computed on
// demand and neither recorded nor dispatched.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lookback, err := intParam(r, "lookback", s.monitor.Config().LookbackHours, 1, maxLookbackHours)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := s.monitor.Engine()
	now := s.now().UTC()
	set := engine.AssembleReports(r.Context(), now, lookback)

	respondJSON(w, http.StatusOK, ReportResponse{
		Service:        engine.Definition().Service,
		LookbackHours:  lookback,
		GeneratedAt:    now,
		Reports:        set,
		Recommendation: s.monitor.Recommend(set),
	})
}

// handleLatest handles GET /v1/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := s.monitor.Cache().Get()
	if !ok {
		respondError(w, http.StatusNotFound, "no report collected yet")
		return
	}

	respondJSON(w, http.StatusOK, s.snapshotResponse(snap))
}

// handleCollect handles POST /v1/collect
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.monitor.RunOnce(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("collection failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, s.snapshotResponse(snap))
}

// handleHistory handles GET /v1/history?hours=24&window=1h
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}

	hours, err := intParam(r, "hours", 24, 1, maxLookbackHours)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	window, err := windowParam(r, "")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.store.QueryRecent(r.Context(), s.now().UTC(), hours)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query history: %v", err))
		return
	}

	filtered := make([]storage.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if window == "" || e.WindowLabel == window {
			filtered = append(filtered, e)
		}
	}

	respondJSON(w, http.StatusOK, HistoryResponse{Entries: filtered, Total: len(filtered)})
}

// handleTrend handles GET /v1/trend?window=1h&n=6&hours=24
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}

	window, err := windowParam(r, eval.RecentWindowLabel)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := intParam(r, "n", eval.DefaultTrendPoints, 2, 1000)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	hours, err := intParam(r, "hours", 24, 1, maxLookbackHours)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.store.QueryRecent(r.Context(), s.now().UTC(), hours)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query history: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, eval.ComputeTrend(storage.TrendPoints(entries), window, n))
}

// handleAlerts handles GET /v1/alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}

	query := r.URL.Query()
	filter := storage.AlertFilter{
		Service:  query.Get("service"),
		Severity: slo.Severity(query.Get("severity")),
	}

	if filter.Severity != "" && !filter.Severity.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid severity: %s", filter.Severity))
		return
	}

	window, err := windowParam(r, "")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.WindowLabel = window

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	if startTimeStr := query.Get("startTime"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filter.StartTime = &startTime
		}
	}

	if endTimeStr := query.Get("endTime"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filter.EndTime = &endTime
		}
	}

	records, err := s.store.QueryAlerts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query alerts: %v", err))
		return
	}
	if records == nil {
		records = []storage.AlertRecord{}
	}

	respondJSON(w, http.StatusOK, AlertsResponse{Alerts: records, Total: len(records)})
}

// handleStream handles GET /v1/stream. It pushes every new snapshot and
// resends the latest one every push interval.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.monitor.Cache().Subscribe()
	defer unsubscribe()

	if snap, ok := s.monitor.Cache().Get(); ok {
		if err := s.writeSnapshot(conn, snap); err != nil {
			return
		}
	}

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			snap, ok := s.monitor.Cache().Get()
			if !ok {
				continue
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snap *scheduler.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(s.snapshotResponse(snap))
}

func (s *Server) snapshotResponse(snap *scheduler.Snapshot) ReportResponse {
	return ReportResponse{
		Service:        snap.Service,
		LookbackHours:  s.monitor.Config().LookbackHours,
		GeneratedAt:    snap.UpdatedAt,
		IsStale:        snap.IsStale(s.now()),
		Reports:        snap.Reports,
		Recommendation: snap.Recommendation,
	}
}

// Helper functions

func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}

func windowParam(r *http.Request, def string) (string, error) {
	window := r.URL.Query().Get("window")
	if window == "" {
		return def, nil
	}
	if !eval.IsWindowLabel(window) {
		return "", errors.New("unknown window: " + window)
	}
	return window, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
