package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/samijaber1/aegis-budget/internal/alert"
	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/metrics"
	"github.com/samijaber1/aegis-budget/internal/policy"
	"github.com/samijaber1/aegis-budget/internal/storage"
)

// Config holds monitor configuration
type Config struct {
	// Interval between ticks
	Interval time.Duration
	// LookbackHours bounds the windows assembled on each tick
	LookbackHours int
	// TickTimeout bounds a whole tick
	TickTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		LookbackHours: 24,
		TickTimeout:   2 * time.Minute,
	}
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// Monitor periodically assembles reports, records them and dispatches alerts.
// At most one tick runs at a time.
type Monitor struct {
	engine     *eval.Engine
	store      storage.HistoryStore
	dispatcher *alert.Dispatcher
	policy     *policy.Engine
	cache      *ReportCache
	recorder   metrics.Recorder
	logger     *zap.Logger
	config     Config
	now        func() time.Time

	tickMu sync.Mutex
	cron   *cron.Cron
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewMonitor creates a monitor. A nil store disables history persistence.
func NewMonitor(engine *eval.Engine, store storage.HistoryStore, dispatcher *alert.Dispatcher, recorder metrics.Recorder, config Config, logger *zap.Logger) *Monitor {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.LookbackHours <= 0 {
		config.LookbackHours = defaults.LookbackHours
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder
	}
	if dispatcher == nil {
		dispatcher = alert.NewDispatcher(logger, recorder)
	}

	return &Monitor{
		engine:     engine,
		store:      store,
		dispatcher: dispatcher,
		policy:     policy.NewEngine(),
		cache:      NewReportCache(),
		recorder:   recorder,
		logger:     logger.Named("monitor"),
		config:     config,
		now:        time.Now,
	}
}

// Engine returns the engine the monitor runs
func (m *Monitor) Engine() *eval.Engine {
	return m.engine
}

// Recommend derives the recommendation of a report set
func (m *Monitor) Recommend(set eval.ReportSet) *policy.Recommendation {
	return m.policy.Recommend(set)
}

// Cache returns the latest-report cache
func (m *Monitor) Cache() *ReportCache {
	return m.cache
}

// Config returns the monitor configuration
func (m *Monitor) Config() Config {
	return m.config
}

// Start runs a first tick immediately, then one every interval
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}

	cl := &cronLogger{logger: m.logger.Named("cron")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	id, err := c.AddFunc(fmt.Sprintf("@every %s", m.config.Interval), m.scheduledTick)
	if err != nil {
		return fmt.Errorf("failed to schedule monitor: %w", err)
	}

	m.cron = c
	m.running = true

	// The first tick goes through the same chain so a cron tick firing
	// while it runs is skipped instead of queued.
	job := c.Entry(id).WrappedJob
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		job.Run()
	}()

	c.Start()
	m.logger.Info("monitor started",
		zap.String("service", m.engine.Definition().Service),
		zap.Duration("interval", m.config.Interval),
		zap.Int("lookback_hours", m.config.LookbackHours),
	)
	return nil
}

// Stop stops scheduling and waits for the running tick to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	c := m.cron
	m.running = false
	m.mu.Unlock()

	m.logger.Info("stopping monitor")
	<-c.Stop().Done()
	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) scheduledTick() {
	if _, err := m.RunOnce(context.Background()); err != nil {
		m.logger.Error("monitor tick failed", zap.Error(err))
	}
}

// RunOnce performs a single tick. The snapshot is returned even when
// recording history fails.
func (m *Monitor) RunOnce(ctx context.Context) (*Snapshot, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.TickTimeout)
		defer cancel()
	}

	started := time.Now()
	snap, err := m.tick(ctx)
	m.recorder.MeasureMonitorTick(ctx, time.Since(started), err)
	return snap, err
}

func (m *Monitor) tick(ctx context.Context) (*Snapshot, error) {
	def := m.engine.Definition()
	now := m.now().UTC()

	set := m.engine.AssembleReports(ctx, now, m.config.LookbackHours)
	snap := &Snapshot{
		Service:        def.Service,
		Reports:        set,
		Recommendation: m.policy.Recommend(set),
		UpdatedAt:      now,
		TTL:            m.config.Interval,
	}

	var errs []error
	if m.store != nil {
		started := time.Now()
		err := m.store.Append(ctx, storage.EntriesFromReports(def.Service, now, set))
		m.recorder.MeasureStorageOperationDuration(ctx, "append", time.Since(started), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to record history: %w", err))
		}
	}

	m.cache.Set(snap)

	for _, lr := range set {
		m.recorder.SetWindowReport(ctx, def.Service, lr.Label,
			lr.Report.BurnRate, lr.Report.ErrorBudgetConsumed, lr.Report.Availability)
		m.dispatchWindow(ctx, def.Service, now, lr)
	}

	m.logger.Info("monitor tick complete",
		zap.String("service", def.Service),
		zap.Int("windows", len(set)),
		zap.Float64("max_burn_rate", set.MaxBurnRate()),
		zap.String("recommendation", string(snap.Recommendation.Level)),
	)

	return snap, errors.Join(errs...)
}

// dispatchWindow sends the alerts of one window. Alerts computed from a
// failed query are only logged.
func (m *Monitor) dispatchWindow(ctx context.Context, service string, now time.Time, lr eval.LabelledReport) {
	if len(lr.Report.TriggeredAlerts) == 0 {
		return
	}

	if lr.Report.QueryFailed {
		m.logger.Warn("not dispatching alerts of a window without data",
			zap.String("window", lr.Label),
			zap.Int("alerts", len(lr.Report.TriggeredAlerts)),
		)
		return
	}

	for _, triggered := range lr.Report.TriggeredAlerts {
		m.dispatcher.Dispatch(ctx, alert.NewPayload(service, lr.Label, triggered, now))
	}
}
