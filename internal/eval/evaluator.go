package eval

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/samijaber1/aegis-budget/internal/slo"
)

// Config holds engine configuration
type Config struct {
	// Step is the resolution requested from the source
	Step time.Duration
	// QueryTimeout bounds a single range query
	QueryTimeout time.Duration
	// Parallelism bounds concurrently evaluated windows
	Parallelism int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Step:         DefaultStep,
		QueryTimeout: 30 * time.Second,
		Parallelism:  4,
	}
}

// Engine computes burn rate reports for one SLO definition.
// It holds no mutable state: every report is a function of the source and the window bounds.
type Engine struct {
	def    *slo.Definition
	source TimeSeriesSource
	config Config
	logger *zap.Logger
}

// NewEngine creates a new engine with the given source
func NewEngine(def *slo.Definition, source TimeSeriesSource, config Config, logger *zap.Logger) *Engine {
	if config.Step <= 0 {
		config.Step = DefaultStep
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		def:    def,
		source: source,
		config: config,
		logger: logger.Named("engine"),
	}
}

// Definition returns the SLO definition the engine evaluates
func (e *Engine) Definition() *slo.Definition {
	return e.def
}

// Source returns the time-series source the engine queries
func (e *Engine) Source() TimeSeriesSource {
	return e.source
}

// Availability computes availability over [start, end]. Query failures are
// logged and reported through the result, never returned.
func (e *Engine) Availability(ctx context.Context, start, end time.Time) AvailabilityResult {
	if e.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
	}

	result := ComputeAvailability(ctx, e.source, e.def.AvailabilityQuery(), start, end, e.config.Step)
	if result.QueryErr != nil {
		e.logger.Warn("availability query failed, treating window as having no samples",
			zap.String("service", e.def.Service),
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(result.QueryErr),
		)
	}
	return result
}

// ComputeBurnRate returns the burn rate over [start, end]
func (e *Engine) ComputeBurnRate(ctx context.Context, start, end time.Time) float64 {
	duration := end.Sub(start)
	if duration <= 0 {
		return 0
	}

	availability := e.Availability(ctx, start, end)
	consumed := ErrorBudgetConsumed(availability.Value, e.def.SLOTarget())
	return BurnRate(consumed, duration)
}

// RecentConsumption returns the budget consumed over the trailing hour ending at now
func (e *Engine) RecentConsumption(ctx context.Context, now time.Time) float64 {
	availability := e.Availability(ctx, now.Add(-time.Hour), now)
	return ErrorBudgetConsumed(availability.Value, e.def.SLOTarget())
}

// TimeToExhaustion estimates the hours before the budget is spent at burnRate.
// The trailing hour is only queried when the budget is burning down.
func (e *Engine) TimeToExhaustion(ctx context.Context, burnRate float64, now time.Time) *float64 {
	if burnRate <= 0 {
		return nil
	}
	return TimeToExhaustion(burnRate, e.RecentConsumption(ctx, now))
}

// AssembleReports evaluates every catalog window that fits in lookbackHours,
// ending at now. The result keeps catalog order.
func (e *Engine) AssembleReports(ctx context.Context, now time.Time, lookbackHours int) ReportSet {
	windows := Windows(now, lookbackHours)
	reports := make([]Report, len(windows))
	if len(windows) == 0 {
		return ReportSet{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Parallelism)

	var recent float64
	g.Go(func() error {
		recent = e.RecentConsumption(gctx, now)
		return nil
	})

	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			reports[i] = e.evaluateWindow(gctx, w)
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes
	_ = g.Wait()

	set := make(ReportSet, len(windows))
	for i, w := range windows {
		r := reports[i]
		r.TimeToExhaustionHours = TimeToExhaustion(r.BurnRate, recent)
		set[i] = LabelledReport{Label: w.Label, Report: r}
	}

	e.logger.Debug("assembled reports",
		zap.String("service", e.def.Service),
		zap.Int("lookback_hours", lookbackHours),
		zap.Strings("windows", set.Labels()),
	)

	return set
}

// evaluateWindow computes everything but the exhaustion estimate for one window
func (e *Engine) evaluateWindow(ctx context.Context, w Window) Report {
	availability := e.Availability(ctx, w.Start, w.End)
	consumed := ErrorBudgetConsumed(availability.Value, e.def.SLOTarget())
	burnRate := BurnRate(consumed, w.End.Sub(w.Start))

	return Report{
		Availability:        availability.Value,
		SampleCount:         availability.SampleCount,
		QueryFailed:         availability.QueryErr != nil,
		ErrorBudgetConsumed: consumed,
		BurnRate:            burnRate,
		TriggeredAlerts:     EvaluateRules(e.def.Rules(), burnRate, w.Minutes()),
		WindowHours:         w.Hours,
		WindowStart:         w.Start,
		WindowEnd:           w.End,
	}
}
