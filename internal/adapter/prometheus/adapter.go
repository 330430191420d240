package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/metrics"
)

// Config holds Prometheus adapter configuration
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxConcurrency int64
	RetryCount     int
	RetryDelay     time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig(prometheusURL string) Config {
	return Config{
		URL:            prometheusURL,
		Timeout:        30 * time.Second,
		MaxConcurrency: 10,
		RetryCount:     1,
		RetryDelay:     100 * time.Millisecond,
	}
}

// Adapter is a time-series source backed by the Prometheus range query API
type Adapter struct {
	config Config
	client APIClient
	sem    *semaphore.Weighted
	logger *zap.Logger
}

var _ eval.TimeSeriesSource = (*Adapter)(nil)

// NewAdapter creates a new Prometheus adapter
func NewAdapter(config Config, recorder metrics.Recorder, logger *zap.Logger) (*Adapter, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder
	}

	client, err := promapi.NewClient(promapi.Config{
		Address: config.URL,
		Client:  &http.Client{Timeout: config.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create prometheus api client: %w", err)
	}

	return NewAdapterWithClient(config, NewMeasuredAPIClient(recorder, prometheusv1.NewAPI(client)), logger), nil
}

// NewAdapterWithClient creates an adapter over an existing API client
func NewAdapterWithClient(config Config, client APIClient, logger *zap.Logger) *Adapter {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		config: config,
		client: client,
		sem:    semaphore.NewWeighted(config.MaxConcurrency),
		logger: logger.Named("prometheus"),
	}
}

// QueryRange implements eval.TimeSeriesSource
func (a *Adapter) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]eval.Series, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	// Acquire semaphore to limit concurrency
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("semaphore acquire: %w", err)
	}
	defer a.sem.Release(1)

	r := prometheusv1.Range{Start: start, End: end, Step: step}

	// Execute query with retry
	var lastErr error
	for attempt := 0; attempt <= a.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("query cancelled after %d attempts: %w", attempt, lastErr)
			case <-time.After(a.config.RetryDelay):
			}
		}

		result, warnings, err := a.client.QueryRange(ctx, query, r)
		if err == nil {
			for _, warning := range warnings {
				a.logger.Warn("prometheus query warning", zap.String("query", query), zap.String("warning", warning))
			}
			return toSeries(result)
		}

		lastErr = err
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", a.config.RetryCount+1, lastErr)
}

// toSeries converts a range query result into raw series
func toSeries(result model.Value) ([]eval.Series, error) {
	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}

	series := make([]eval.Series, 0, len(matrix))
	for _, stream := range matrix {
		samples := make([]eval.Sample, 0, len(stream.Values))
		for _, v := range stream.Values {
			samples = append(samples, eval.Sample{
				Timestamp: v.Timestamp.Time().UTC(),
				Value:     strconv.FormatFloat(float64(v.Value), 'f', -1, 64),
			})
		}
		series = append(series, eval.Series{
			Label:   stream.Metric.String(),
			Samples: samples,
		})
	}
	return series, nil
}
