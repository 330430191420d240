package metrics

import (
	"context"
	"time"
)

// Recorder records the engine's operational metrics
type Recorder interface {
	MeasureSourceQuery(ctx context.Context, source string, t time.Duration, err error)
	MeasureStorageOperationDuration(ctx context.Context, op string, t time.Duration, err error)
	MeasureMonitorTick(ctx context.Context, t time.Duration, err error)
	IncAlertDispatch(ctx context.Context, sink, severity string, err error)
	SetWindowReport(ctx context.Context, service, window string, burnRate, consumed, availability float64)
}

type noopRecorder bool

// NoopRecorder discards every measurement
var NoopRecorder Recorder = noopRecorder(false)

func (r noopRecorder) MeasureSourceQuery(ctx context.Context, source string, t time.Duration, err error) {
}

func (r noopRecorder) MeasureStorageOperationDuration(ctx context.Context, op string, t time.Duration, err error) {
}

func (r noopRecorder) MeasureMonitorTick(ctx context.Context, t time.Duration, err error) {}

func (r noopRecorder) IncAlertDispatch(ctx context.Context, sink, severity string, err error) {}

func (r noopRecorder) SetWindowReport(ctx context.Context, service, window string, burnRate, consumed, availability float64) {
}
