package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/samijaber1/aegis-budget/internal/metrics"
)

const (
	Prefix = "aegis"
)

// Recorder is a metrics.Recorder backed by Prometheus collectors
type Recorder struct {
	reg prometheus.Registerer

	sourceQueryLatency      *prometheus.HistogramVec
	storageOperationLatency *prometheus.HistogramVec
	monitorTickLatency      *prometheus.HistogramVec
	alertDispatches         *prometheus.CounterVec
	burnRate                *prometheus.GaugeVec
	budgetConsumed          *prometheus.GaugeVec
	availability            *prometheus.GaugeVec
}

var _ metrics.Recorder = Recorder{}

// NewRecorder creates the collectors and registers them on reg
func NewRecorder(reg prometheus.Registerer) Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		reg: reg,

		sourceQueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Prefix,
				Subsystem: "source",
				Name:      "query_duration_seconds",
				Help:      "Duration histogram of time-series source range queries.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source", "success"},
		),

		storageOperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Prefix,
				Subsystem: "storage",
				Name:      "operation_duration_seconds",
				Help:      "Duration histogram of history storage operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "success"},
		),

		monitorTickLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Prefix,
				Subsystem: "monitor",
				Name:      "tick_duration_seconds",
				Help:      "Duration histogram of monitor collection ticks.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"success"},
		),

		alertDispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Prefix,
				Subsystem: "alert",
				Name:      "dispatches_total",
				Help:      "Total alert deliveries per sink.",
			},
			[]string{"sink", "severity", "success"},
		),

		burnRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Prefix,
				Subsystem: "report",
				Name:      "burn_rate",
				Help:      "Error budget burn rate of the latest report per window.",
			},
			[]string{"service", "window"},
		),

		budgetConsumed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Prefix,
				Subsystem: "report",
				Name:      "error_budget_consumed_ratio",
				Help:      "Consumed fraction of the error budget of the latest report per window.",
			},
			[]string{"service", "window"},
		),

		availability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Prefix,
				Subsystem: "report",
				Name:      "availability_ratio",
				Help:      "Measured availability of the latest report per window.",
			},
			[]string{"service", "window"},
		),
	}

	r.init()

	return *r
}

func (r Recorder) init() {
	// Register our collectors.
	r.reg.MustRegister(
		r.sourceQueryLatency,
		r.storageOperationLatency,
		r.monitorTickLatency,
		r.alertDispatches,
		r.burnRate,
		r.budgetConsumed,
		r.availability,
	)
}

func (r Recorder) MeasureSourceQuery(ctx context.Context, source string, t time.Duration, err error) {
	r.sourceQueryLatency.WithLabelValues(source, strconv.FormatBool(err == nil)).Observe(t.Seconds())
}

func (r Recorder) MeasureStorageOperationDuration(ctx context.Context, op string, t time.Duration, err error) {
	r.storageOperationLatency.WithLabelValues(op, strconv.FormatBool(err == nil)).Observe(t.Seconds())
}

func (r Recorder) MeasureMonitorTick(ctx context.Context, t time.Duration, err error) {
	r.monitorTickLatency.WithLabelValues(strconv.FormatBool(err == nil)).Observe(t.Seconds())
}

func (r Recorder) IncAlertDispatch(ctx context.Context, sink, severity string, err error) {
	r.alertDispatches.WithLabelValues(sink, severity, strconv.FormatBool(err == nil)).Inc()
}

func (r Recorder) SetWindowReport(ctx context.Context, service, window string, burnRate, consumed, availability float64) {
	r.burnRate.WithLabelValues(service, window).Set(burnRate)
	r.budgetConsumed.WithLabelValues(service, window).Set(consumed)
	r.availability.WithLabelValues(service, window).Set(availability)
}
