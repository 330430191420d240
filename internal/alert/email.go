package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailSink sends one plain-text email per alert
type EmailSink struct {
	config   EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSink creates an email sink
func NewEmailSink(config EmailConfig) *EmailSink {
	return &EmailSink{
		config:   config,
		sendMail: smtp.SendMail,
	}
}

// Name implements Sink
func (s *EmailSink) Name() string { return "email" }

// Notify implements Sink
func (s *EmailSink) Notify(ctx context.Context, p Payload) error {
	if len(s.config.To) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// net/smtp has no context support; run the send so cancellation can return early
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.config.From, s.config.To, formatEmail(s.config.From, s.config.To, p))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

func formatEmail(from string, to []string, p Payload) []byte {
	subject := fmt.Sprintf("[%s] %s burn rate alert: %s", strings.ToUpper(string(p.Severity)), p.Service, p.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", p.Message)
	fmt.Fprintf(&b, "Service:   %s\r\n", p.Service)
	fmt.Fprintf(&b, "Window:    %s\r\n", p.Window)
	fmt.Fprintf(&b, "Burn rate: %.2fx (threshold %gx)\r\n", p.BurnRate, p.Threshold)
	fmt.Fprintf(&b, "Time:      %s\r\n", p.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Alert ID:  %s\r\n", p.ID)
	return []byte(b.String())
}
