package prometheus

import (
	"context"
	"time"

	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/samijaber1/aegis-budget/internal/metrics"
)

// APIClient is the subset of the Prometheus HTTP API client the adapter relies on.
// Wrapping it lets us measure calls and fake the backend in tests.
type APIClient interface {
	QueryRange(ctx context.Context, query string, r prometheusv1.Range, opts ...prometheusv1.Option) (model.Value, prometheusv1.Warnings, error)
}

// NewMeasuredAPIClient wraps promcli recording the latency of every call
func NewMeasuredAPIClient(metricsRecorder metrics.Recorder, promcli APIClient) APIClient {
	return measuredAPIClient{
		APIClient:       promcli,
		metricsRecorder: metricsRecorder,
	}
}

type measuredAPIClient struct {
	APIClient
	metricsRecorder metrics.Recorder
}

func (m measuredAPIClient) QueryRange(ctx context.Context, query string, r prometheusv1.Range, opts ...prometheusv1.Option) (v model.Value, w prometheusv1.Warnings, err error) {
	start := time.Now()
	defer func() {
		m.metricsRecorder.MeasureSourceQuery(ctx, "prometheus", time.Since(start), err)
	}()
	return m.APIClient.QueryRange(ctx, query, r, opts...)
}
