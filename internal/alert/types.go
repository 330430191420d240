package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/slo"
)

// Payload is a structured alert handed to every sink
type Payload struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Severity  slo.Severity `json:"severity"`
	Message   string       `json:"message"`
	BurnRate  float64      `json:"burn_rate"`
	Threshold float64      `json:"threshold"`
	Service   string       `json:"service"`
	Window    string       `json:"window"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewPayload builds the payload of an alert triggered on window at ts
func NewPayload(service, window string, triggered eval.TriggeredAlert, ts time.Time) Payload {
	message := triggered.Description
	if message == "" {
		message = fmt.Sprintf("%s: burn rate %.2fx over %s (threshold %gx)",
			triggered.Name, triggered.BurnRate, window, triggered.Threshold)
	}

	return Payload{
		ID:        uuid.New().String(),
		Name:      triggered.Name,
		Severity:  triggered.Severity,
		Message:   message,
		BurnRate:  triggered.BurnRate,
		Threshold: triggered.Threshold,
		Service:   service,
		Window:    window,
		Timestamp: ts,
	}
}

// Sink delivers alerts to an external channel.
// Errors are reported to the dispatcher which only logs them.
type Sink interface {
	Name() string
	Notify(ctx context.Context, p Payload) error
}
