package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samijaber1/aegis-budget/internal/adapter/synthetic"
	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/policy"
	"github.com/samijaber1/aegis-budget/internal/scheduler"
	"github.com/samijaber1/aegis-budget/internal/slo"
	"github.com/samijaber1/aegis-budget/internal/storage"
	"github.com/samijaber1/aegis-budget/internal/storage/sqlite"
)

func testMonitor(t *testing.T, store storage.HistoryStore) *scheduler.Monitor {
	t.Helper()

	adapter := synthetic.NewAdapter()
	err := adapter.SetFixture("checkout", &synthetic.MetricFixture{
		Windows: map[string]synthetic.WindowData{
			"1h":  {Availability: synthetic.Float(0.98)},
			"6h":  {Availability: synthetic.Float(0.9995)},
			"24h": {Availability: synthetic.Float(0.9999)},
		},
	})
	if err != nil {
		t.Fatalf("failed to set fixture: %v", err)
	}

	def := &slo.Definition{
		Service: "checkout",
		SLIs: slo.SLIs{Availability: slo.AvailabilitySLI{
			SLOTarget:   0.999,
			Measurement: slo.Measurement{Query: "fixture:checkout"},
		}},
		Alerting: slo.Alerting{BurnRateAlerts: slo.AlertRules{
			{Name: "page", BurnRateThreshold: 1.0, WindowMinutes: 60, Severity: slo.SeverityCritical, Description: "Critical burn rate"},
			{Name: "ticket", BurnRateThreshold: 0.5, WindowMinutes: 360, Severity: slo.SeverityWarning},
		}},
	}

	engine := eval.NewEngine(def, adapter, eval.DefaultConfig(), nil)
	return scheduler.NewMonitor(engine, store, nil, nil, scheduler.DefaultConfig(), nil)
}

func setupTestServer(t *testing.T) (*Server, *scheduler.Monitor) {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	monitor := testMonitor(t, store)

	reg := prometheus.NewRegistry()
	server := NewServer(monitor, store, Options{
		Addr:           ":0",
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		PushInterval:   time.Hour,
	})
	return server, monitor
}

func collect(t *testing.T, monitor *scheduler.Monitor) {
	t.Helper()
	if _, err := monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("failed to collect: %v", err)
	}
}

func do(server *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(server, "GET", "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("expected status=ok, got %s", resp.Status)
	}

	if w := do(server, "POST", "/healthz"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, monitor := setupTestServer(t)

	w := do(server, "GET", "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 before first collection, got %d", w.Code)
	}

	collect(t, monitor)

	w = do(server, "GET", "/readyz")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp ReadyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Ready || resp.LastUpdated == nil {
		t.Errorf("expected ready with last update, got %+v", resp)
	}
}

func TestSLOEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(server, "GET", "/v1/slo")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, `"service":"checkout"`) {
		t.Errorf("expected service in response: %s", body)
	}
	// Rules keep declaration order
	if strings.Index(body, `"page"`) > strings.Index(body, `"ticket"`) {
		t.Errorf("expected page before ticket: %s", body)
	}

	var resp SLOResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SLOTarget != 0.999 {
		t.Errorf("expected target 0.999, got %v", resp.SLOTarget)
	}
	if len(resp.Windows) != 4 {
		t.Errorf("expected 4 catalog windows, got %v", resp.Windows)
	}
	if len(resp.AlertRules) != 2 || resp.AlertRules[0].Name != "page" || resp.AlertRules[1].Name != "ticket" {
		t.Errorf("expected decoded rules [page ticket], got %+v", resp.AlertRules)
	}
}

func TestReportEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(server, "GET", "/v1/report?lookback=6")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ReportResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	labels := resp.Reports.Labels()
	if len(labels) != 2 || labels[0] != "1h" || labels[1] != "6h" {
		t.Errorf("expected windows [1h 6h], got %v", labels)
	}

	oneHour, _ := resp.Reports.Get("1h")
	if oneHour.BurnRate != 1 {
		t.Errorf("expected 1h burn rate 1, got %v", oneHour.BurnRate)
	}
	if len(oneHour.TriggeredAlerts) != 1 || oneHour.TriggeredAlerts[0].Name != "page" {
		t.Errorf("expected page alert, got %+v", oneHour.TriggeredAlerts)
	}
	if resp.Recommendation == nil || resp.Recommendation.Level != policy.LevelWATCH {
		t.Errorf("expected WATCH recommendation, got %+v", resp.Recommendation)
	}

	for _, target := range []string{"/v1/report?lookback=abc", "/v1/report?lookback=0"} {
		if w := do(server, "GET", target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, w.Code)
		}
	}
}

func TestCollectAndLatest(t *testing.T) {
	server, _ := setupTestServer(t)

	if w := do(server, "GET", "/v1/latest"); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 before first collection, got %d", w.Code)
	}

	if w := do(server, "GET", "/v1/collect"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}

	w := do(server, "POST", "/v1/collect")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(server, "GET", "/v1/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp ReportResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Service != "checkout" {
		t.Errorf("expected service checkout, got %s", resp.Service)
	}
	if len(resp.Reports) != 3 {
		t.Errorf("expected 3 windows, got %d", len(resp.Reports))
	}
	if resp.IsStale {
		t.Error("expected fresh snapshot")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	server, monitor := setupTestServer(t)

	collect(t, monitor)
	collect(t, monitor)

	w := do(server, "GET", "/v1/history")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var history HistoryResponse
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if history.Total != 6 {
		t.Errorf("expected 6 entries, got %d", history.Total)
	}

	w = do(server, "GET", "/v1/history?window=1h")
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if history.Total != 2 {
		t.Errorf("expected 2 entries for 1h, got %d", history.Total)
	}

	if w := do(server, "GET", "/v1/history?window=2h"); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown window, got %d", w.Code)
	}

	w = do(server, "GET", "/v1/trend?window=1h")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var trend eval.Trend
	if err := json.NewDecoder(w.Body).Decode(&trend); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if trend.Direction != eval.DirectionFlat || len(trend.Points) != 2 {
		t.Errorf("expected flat trend over 2 points, got %s over %d", trend.Direction, len(trend.Points))
	}
	if trend.MeanBurnRate != 1 {
		t.Errorf("expected mean burn rate 1, got %v", trend.MeanBurnRate)
	}

	if w := do(server, "GET", "/v1/trend?n=1"); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for n=1, got %d", w.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	server, monitor := setupTestServer(t)

	w := do(server, "GET", "/v1/alerts")
	if !strings.Contains(w.Body.String(), `"alerts":[]`) {
		t.Errorf("expected empty alert list, got %s", w.Body.String())
	}

	collect(t, monitor)
	collect(t, monitor)

	w = do(server, "GET", "/v1/alerts?severity=critical&limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp AlertsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 critical alerts, got %d", resp.Total)
	}
	if resp.Alerts[0].Name != "page" || resp.Alerts[0].Message != "Critical burn rate" {
		t.Errorf("unexpected alert record: %+v", resp.Alerts[0])
	}

	if w := do(server, "GET", "/v1/alerts?severity=fatal"); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid severity, got %d", w.Code)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	server := NewServer(testMonitor(t, nil), nil, Options{})

	for _, target := range []string{"/v1/history", "/v1/trend", "/v1/alerts"} {
		if w := do(server, "GET", target); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503, got %d", target, w.Code)
		}
	}

	if w := do(server, "GET", "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("expected /metrics to be absent, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	if w := do(server, "GET", "/metrics"); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestStreamEndpoint(t *testing.T) {
	server, monitor := setupTestServer(t)
	collect(t, monitor)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial stream: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first ReportResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("failed to read initial snapshot: %v", err)
	}
	if first.Service != "checkout" || len(first.Reports) != 3 {
		t.Errorf("unexpected initial snapshot: %+v", first)
	}

	// Wait for the subscription before triggering a new tick
	deadline := time.Now().Add(5 * time.Second)
	for monitor.Cache().Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	collect(t, monitor)

	var next ReportResponse
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("failed to read pushed snapshot: %v", err)
	}
	if !next.GeneratedAt.After(first.GeneratedAt) && !next.GeneratedAt.Equal(first.GeneratedAt) {
		t.Errorf("expected a newer snapshot, got %v after %v", next.GeneratedAt, first.GeneratedAt)
	}
}
