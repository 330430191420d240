package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/metrics"
	"github.com/samijaber1/aegis-budget/internal/slo"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testPayload(severity slo.Severity) Payload {
	return NewPayload("url-shortener", "1h", eval.TriggeredAlert{
		Name:        "fast_burn",
		Severity:    severity,
		Description: "Burn rate critique",
		BurnRate:    15.2,
		Threshold:   14.4,
	}, testTime)
}

func TestNewPayload(t *testing.T) {
	p := testPayload(slo.SeverityCritical)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "fast_burn", p.Name)
	assert.Equal(t, "Burn rate critique", p.Message)
	assert.Equal(t, "url-shortener", p.Service)
	assert.Equal(t, "1h", p.Window)
	assert.Equal(t, testTime, p.Timestamp)

	other := testPayload(slo.SeverityCritical)
	assert.NotEqual(t, p.ID, other.ID)
}

func TestNewPayload_FallbackMessage(t *testing.T) {
	p := NewPayload("svc", "6h", eval.TriggeredAlert{
		Name:      "slow_burn",
		Severity:  slo.SeverityWarning,
		BurnRate:  0.5,
		Threshold: 0.25,
	}, testTime)

	assert.Equal(t, "slow_burn: burn rate 0.50x over 6h (threshold 0.25x)", p.Message)
}

type recordingSink struct {
	name string
	err  error

	mu       sync.Mutex
	payloads []Payload
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(_ context.Context, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.err
}

type dispatchCount struct {
	sink, severity string
	failed         bool
}

type countingRecorder struct {
	metrics.Recorder
	dispatches []dispatchCount
}

func (r *countingRecorder) IncAlertDispatch(_ context.Context, sink, severity string, err error) {
	r.dispatches = append(r.dispatches, dispatchCount{sink: sink, severity: severity, failed: err != nil})
}

func TestDispatcher_FansOutAndSurvivesFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	recorder := &countingRecorder{Recorder: metrics.NoopRecorder}

	failing := &recordingSink{name: "broken", err: errors.New("connection refused")}
	healthy := &recordingSink{name: "healthy"}

	d := NewDispatcher(zap.New(core), recorder, failing, healthy)
	assert.Equal(t, []string{"broken", "healthy"}, d.Sinks())

	p := testPayload(slo.SeverityCritical)
	d.Dispatch(context.Background(), p)

	require.Len(t, failing.payloads, 1)
	require.Len(t, healthy.payloads, 1)
	assert.Equal(t, p.ID, healthy.payloads[0].ID)

	assert.Equal(t, []dispatchCount{
		{sink: "broken", severity: "critical", failed: true},
		{sink: "healthy", severity: "critical", failed: false},
	}, recorder.dispatches)

	alertLogs := logs.FilterMessage("burn rate alert").All()
	require.Len(t, alertLogs, 1)
	assert.Equal(t, "fast_burn", alertLogs[0].ContextMap()["name"])

	failures := logs.FilterMessage("alert delivery failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].ContextMap()["sink"])
}

func TestDispatcher_NoSinksStillLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	d := NewDispatcher(zap.New(core), nil)
	d.Dispatch(context.Background(), testPayload(slo.SeverityWarning))

	assert.Equal(t, 1, logs.FilterMessage("burn rate alert").Len())
}

func TestWebhookSink_Notify(t *testing.T) {
	var got webhookMessage
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	err := sink.Notify(context.Background(), testPayload(slo.SeverityCritical))
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "🚨 CRITICAL: Burn rate critique", got.Text)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "danger", got.Attachments[0].Color)

	fields := map[string]string{}
	for _, f := range got.Attachments[0].Fields {
		fields[f.Title] = f.Value
	}
	assert.Equal(t, "15.20x", fields["Burn Rate"])
	assert.Equal(t, "14.4x", fields["Threshold"])
	assert.Equal(t, "url-shortener", fields["Service"])
	assert.Equal(t, "2024-03-01T12:00:00Z", fields["Timestamp"])
	assert.Equal(t, "fast_burn", got.Alert.Name)
}

func TestWebhookSink_WarningColor(t *testing.T) {
	msg := buildWebhookMessage(testPayload(slo.SeverityWarning))
	assert.Equal(t, "warning", msg.Attachments[0].Color)
	assert.True(t, strings.HasPrefix(msg.Text, "🚨 WARNING:"))
}

func TestWebhookSink_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	err := sink.Notify(context.Background(), testPayload(slo.SeverityCritical))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestWebhookSink_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 50*time.Millisecond)
	err := sink.Notify(context.Background(), testPayload(slo.SeverityCritical))
	assert.Error(t, err)
}

func TestEmailSink_Notify(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	var gotAuth smtp.Auth

	sink := NewEmailSink(EmailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "aegis",
		Password: "secret",
		From:     "aegis@example.com",
		To:       []string{"oncall@example.com", "sre@example.com"},
	})
	sink.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	err := sink.Notify(context.Background(), testPayload(slo.SeverityCritical))
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "aegis@example.com", gotFrom)
	assert.Equal(t, []string{"oncall@example.com", "sre@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [CRITICAL] url-shortener burn rate alert: fast_burn\r\n")
	assert.Contains(t, gotMsg, "To: oncall@example.com, sre@example.com\r\n")
	assert.Contains(t, gotMsg, "Burn rate critique")
	assert.Contains(t, gotMsg, "Burn rate: 15.20x (threshold 14.4x)")
}

func TestEmailSink_NoAuthWithoutCredentials(t *testing.T) {
	sink := NewEmailSink(EmailConfig{Host: "localhost", Port: 25, From: "a@b", To: []string{"c@d"}})

	called := false
	sink.sendMail = func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		called = true
		assert.Nil(t, a)
		return nil
	}

	require.NoError(t, sink.Notify(context.Background(), testPayload(slo.SeverityWarning)))
	assert.True(t, called)
}

func TestEmailSink_Errors(t *testing.T) {
	sink := NewEmailSink(EmailConfig{Host: "localhost", Port: 25})
	err := sink.Notify(context.Background(), testPayload(slo.SeverityWarning))
	assert.ErrorContains(t, err, "no email recipients")

	sink = NewEmailSink(EmailConfig{Host: "localhost", Port: 25, To: []string{"c@d"}})
	sink.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("550 mailbox unavailable")
	}
	err = sink.Notify(context.Background(), testPayload(slo.SeverityWarning))
	assert.ErrorContains(t, err, "550 mailbox unavailable")
}

func startNATS(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	}

	s, err := server.NewServer(opts)
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(s.Shutdown)

	return s
}

func TestNATSSink_PublishesBySeverity(t *testing.T) {
	s := startNATS(t)

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("aegis.alerts.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	sink, err := NewNATSSink(s.ClientURL(), "", zap.NewNop())
	require.NoError(t, err)
	defer sink.Close()

	p := testPayload(slo.SeverityCritical)
	require.NoError(t, sink.Notify(context.Background(), p))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "aegis.alerts.critical", msg.Subject)

	var got Payload
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, slo.SeverityCritical, got.Severity)
	assert.Equal(t, 15.2, got.BurnRate)
}

func TestNATSSink_NotifyWithDeadline(t *testing.T) {
	s := startNATS(t)

	sink, err := NewNATSSink(s.ClientURL(), "", zap.NewNop())
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, sink.Notify(ctx, testPayload(slo.SeverityWarning)))

	// Without a deadline the flush falls back to the sink timeout
	assert.NoError(t, sink.Notify(context.Background(), testPayload(slo.SeverityWarning)))
}

func TestNATSSink_CustomPrefix(t *testing.T) {
	s := startNATS(t)

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sink := NewNATSSinkWithConn(nc, "slo.budget")
	assert.Equal(t, "slo.budget.warning", sink.Subject(testPayload(slo.SeverityWarning)))

	// Closing a borrowed connection is left to its owner
	require.NoError(t, sink.Close())
	assert.False(t, nc.IsClosed())
}

func TestNATSSink_ConnectFailure(t *testing.T) {
	_, err := NewNATSSink("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}
