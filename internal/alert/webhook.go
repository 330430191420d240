package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samijaber1/aegis-budget/internal/slo"
)

// WebhookSink posts alerts as JSON to a chat-style incoming webhook
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookMessage struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments"`
	Alert       Payload             `json:"alert"`
}

type webhookAttachment struct {
	Color  string         `json:"color"`
	Fields []webhookField `json:"fields"`
}

type webhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Name implements Sink
func (s *WebhookSink) Name() string { return "webhook" }

// Notify implements Sink. Any non-2xx answer is a delivery failure.
func (s *WebhookSink) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(buildWebhookMessage(p))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func buildWebhookMessage(p Payload) webhookMessage {
	color := "warning"
	if p.Severity == slo.SeverityCritical {
		color = "danger"
	}

	return webhookMessage{
		Text: fmt.Sprintf("🚨 %s: %s", strings.ToUpper(string(p.Severity)), p.Message),
		Attachments: []webhookAttachment{{
			Color: color,
			Fields: []webhookField{
				{Title: "Burn Rate", Value: fmt.Sprintf("%.2fx", p.BurnRate), Short: true},
				{Title: "Threshold", Value: fmt.Sprintf("%gx", p.Threshold), Short: true},
				{Title: "Service", Value: p.Service, Short: true},
				{Title: "Timestamp", Value: p.Timestamp.Format(time.RFC3339), Short: true},
			},
		}},
		Alert: p,
	}
}
