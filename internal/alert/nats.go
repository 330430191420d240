package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the subject prefix alerts are published under
const DefaultSubjectPrefix = "aegis.alerts"

// NATSSink publishes alerts on <prefix>.<severity>
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// NewNATSSink connects to url and publishes under prefix
func NewNATSSink(url, prefix string, logger *zap.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	conn, err := nats.Connect(url,
		nats.Name("aegis-budget"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sink := NewNATSSinkWithConn(conn, prefix)
	sink.owned = true
	return sink, nil
}

// NewNATSSinkWithConn publishes on an existing connection
func NewNATSSinkWithConn(conn *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an alert of severity is published on
func (s *NATSSink) Subject(p Payload) string {
	return s.prefix + "." + string(p.Severity)
}

// Notify implements Sink. The publish is flushed so server-side errors surface.
func (s *NATSSink) Notify(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := s.conn.Publish(s.Subject(p), data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	if err := s.flush(ctx); err != nil {
		return fmt.Errorf("failed to flush alert: %w", err)
	}
	return nil
}

// flush waits for the server round trip. FlushWithContext needs a deadline,
// so callers without one get DefaultSinkTimeout.
func (s *NATSSink) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return s.conn.FlushTimeout(DefaultSinkTimeout)
	}
	return s.conn.FlushWithContext(ctx)
}

// Close drains the connection when the sink owns it
func (s *NATSSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.conn.Drain()
}
