// Package app assembles the engine, its collaborators and the monitor from
// runtime configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/samijaber1/aegis-budget/internal/adapter/cloudmonitoring"
	"github.com/samijaber1/aegis-budget/internal/adapter/prometheus"
	"github.com/samijaber1/aegis-budget/internal/adapter/synthetic"
	"github.com/samijaber1/aegis-budget/internal/alert"
	"github.com/samijaber1/aegis-budget/internal/config"
	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/metrics"
	"github.com/samijaber1/aegis-budget/internal/scheduler"
	"github.com/samijaber1/aegis-budget/internal/slo"
	"github.com/samijaber1/aegis-budget/internal/storage/sqlite"
)

// Components holds everything built from a configuration
type Components struct {
	Config     *config.Config
	Definition *slo.Definition
	Source     eval.TimeSeriesSource
	Engine     *eval.Engine
	Store      *sqlite.Store
	Dispatcher *alert.Dispatcher
	Monitor    *scheduler.Monitor

	closers []func() error
}

// Build loads the SLO definition and wires every component. Close must be
// called on success.
func Build(ctx context.Context, cfg *config.Config, recorder metrics.Recorder, logger *zap.Logger) (_ *Components, err error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	engine, closeSource, err := NewEngine(ctx, cfg, recorder, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeSource)
	c.Engine = engine
	c.Definition = engine.Definition()
	c.Source = engine.Source()

	c.Store, err = sqlite.NewStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	c.closers = append(c.closers, c.Store.Close)

	sinks, closeSinks, err := NewSinks(cfg.Alerting, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeSinks)
	c.Dispatcher = alert.NewDispatcher(logger, recorder, sinks...)

	c.Monitor = scheduler.NewMonitor(c.Engine, c.Store, c.Dispatcher, recorder, scheduler.Config{
		Interval:      cfg.Monitor.Interval,
		LookbackHours: cfg.Monitor.LookbackHours,
		TickTimeout:   cfg.Monitor.TickTimeout,
	}, logger)

	return c, nil
}

// Close releases components in reverse order of creation
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// NewEngine loads the SLO definition and builds an engine over the configured
// source. The returned function releases the source.
func NewEngine(ctx context.Context, cfg *config.Config, recorder metrics.Recorder, logger *zap.Logger) (*eval.Engine, func() error, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	def, err := slo.Load(cfg.SLO.File)
	if err != nil {
		return nil, nil, err
	}

	source, closeSource, err := NewSource(ctx, cfg.Source, def, recorder, logger)
	if err != nil {
		return nil, nil, err
	}

	engine := eval.NewEngine(def, source, eval.Config{
		Step:         cfg.Source.Step,
		QueryTimeout: cfg.Source.QueryTimeout,
		Parallelism:  cfg.Source.Parallelism,
	}, logger)
	return engine, closeSource, nil
}

// NewSource builds the configured time-series source
func NewSource(ctx context.Context, cfg config.SourceConfig, def *slo.Definition, recorder metrics.Recorder, logger *zap.Logger) (eval.TimeSeriesSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case config.SourcePrometheus:
		promConfig := prometheus.DefaultConfig(cfg.PrometheusURL)
		promConfig.Timeout = cfg.QueryTimeout
		promConfig.MaxConcurrency = int64(cfg.MaxConcurrency)
		promConfig.RetryCount = cfg.RetryCount

		adapter, err := prometheus.NewAdapter(promConfig, recorder, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using Prometheus source", zap.String("url", cfg.PrometheusURL))
		return adapter, noop, nil

	case config.SourceSynthetic:
		adapter := synthetic.NewAdapter()
		// The fixture answers the definition's own query
		name := synthetic.FixtureName(def.AvailabilityQuery())
		if err := adapter.LoadFixture(name, cfg.Fixture); err != nil {
			return nil, nil, err
		}
		logger.Info("using synthetic source", zap.String("fixture", cfg.Fixture))
		return adapter, noop, nil

	case config.SourceCloudMonitoring:
		adapter, err := cloudmonitoring.NewAdapter(ctx, cloudmonitoring.Config{
			Project: cfg.Project,
			Reduce:  cfg.Reduce,
		}, recorder)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using Cloud Monitoring source", zap.String("project", cfg.Project))
		return adapter, adapter.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

// NewSinks builds the alert sinks enabled in cfg
func NewSinks(cfg config.AlertingConfig, logger *zap.Logger) ([]alert.Sink, func() error, error) {
	var sinks []alert.Sink
	closeSinks := func() error { return nil }

	if cfg.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout))
	}

	if cfg.Email.Host != "" {
		sinks = append(sinks, alert.NewEmailSink(alert.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}

	if cfg.NATS.URL != "" {
		natsSink, err := alert.NewNATSSink(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, natsSink)
		closeSinks = natsSink.Close
	}

	return sinks, closeSinks, nil
}
