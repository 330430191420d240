package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/samijaber1/aegis-budget/internal/metrics"
)

// DefaultSinkTimeout bounds a single sink delivery
const DefaultSinkTimeout = 10 * time.Second

// Dispatcher logs every alert and fans it out to the configured sinks.
// Delivery is best-effort: failures are logged and never retried.
type Dispatcher struct {
	logger      *zap.Logger
	sinks       []Sink
	recorder    metrics.Recorder
	sinkTimeout time.Duration
}

// NewDispatcher creates a dispatcher over sinks
func NewDispatcher(logger *zap.Logger, recorder metrics.Recorder, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder
	}
	return &Dispatcher{
		logger:      logger.Named("alert"),
		sinks:       sinks,
		recorder:    recorder,
		sinkTimeout: DefaultSinkTimeout,
	}
}

// Sinks returns the names of the configured sinks
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch delivers p. It never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) {
	d.logger.Warn("burn rate alert",
		zap.String("id", p.ID),
		zap.String("name", p.Name),
		zap.String("severity", string(p.Severity)),
		zap.String("message", p.Message),
		zap.Float64("burn_rate", p.BurnRate),
		zap.Float64("threshold", p.Threshold),
		zap.String("service", p.Service),
		zap.String("window", p.Window),
		zap.Time("timestamp", p.Timestamp),
	)

	for _, sink := range d.sinks {
		err := d.notify(ctx, sink, p)
		d.recorder.IncAlertDispatch(ctx, sink.Name(), string(p.Severity), err)
		if err != nil {
			d.logger.Error("alert delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("id", p.ID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) notify(ctx context.Context, sink Sink, p Payload) error {
	ctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
	defer cancel()
	return sink.Notify(ctx, p)
}
