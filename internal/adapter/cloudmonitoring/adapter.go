package cloudmonitoring

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/metrics"
)

// minAlignment is the smallest alignment period Cloud Monitoring accepts
const minAlignment = 60 * time.Second

// TimeSeriesIterator iterates over ListTimeSeries results
type TimeSeriesIterator interface {
	Next() (*monitoringpb.TimeSeries, error)
}

// MetricLister lists time series. It is satisfied by a thin wrapper over the
// Cloud Monitoring metric client.
type MetricLister interface {
	ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) TimeSeriesIterator
}

type metricClient struct {
	client *monitoring.MetricClient
}

func (c metricClient) ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) TimeSeriesIterator {
	return c.client.ListTimeSeries(ctx, req)
}

// Config holds Cloud Monitoring adapter configuration
type Config struct {
	Project string
	// Reduce averages all matching series into one
	Reduce bool
}

// Adapter is a time-series source backed by Cloud Monitoring ListTimeSeries.
// The availability query is used as the time series filter.
type Adapter struct {
	config   Config
	lister   MetricLister
	recorder metrics.Recorder
	closer   func() error
}

var _ eval.TimeSeriesSource = (*Adapter)(nil)

// NewAdapter dials Cloud Monitoring with application default credentials
func NewAdapter(ctx context.Context, config Config, recorder metrics.Recorder) (*Adapter, error) {
	if config.Project == "" {
		return nil, fmt.Errorf("cloud monitoring project is required")
	}

	client, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create metric client: %w", err)
	}

	a := NewAdapterWithLister(config, metricClient{client: client}, recorder)
	a.closer = client.Close
	return a, nil
}

// NewAdapterWithLister creates an adapter over an existing lister
func NewAdapterWithLister(config Config, lister MetricLister, recorder metrics.Recorder) *Adapter {
	if recorder == nil {
		recorder = metrics.NoopRecorder
	}
	return &Adapter{
		config:   config,
		lister:   lister,
		recorder: recorder,
	}
}

// Close releases the underlying client
func (a *Adapter) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

// QueryRange implements eval.TimeSeriesSource
func (a *Adapter) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (series []eval.Series, err error) {
	began := time.Now()
	defer func() {
		a.recorder.MeasureSourceQuery(ctx, "cloudmonitoring", time.Since(began), err)
	}()

	if step < minAlignment {
		step = minAlignment
	}

	aggregation := &monitoringpb.Aggregation{
		AlignmentPeriod:  durationpb.New(step),
		PerSeriesAligner: monitoringpb.Aggregation_ALIGN_MEAN,
	}
	if a.config.Reduce {
		aggregation.CrossSeriesReducer = monitoringpb.Aggregation_REDUCE_MEAN
	}

	req := &monitoringpb.ListTimeSeriesRequest{
		Name:   fmt.Sprintf("projects/%s", a.config.Project),
		Filter: query,
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(start),
			EndTime:   timestamppb.New(end),
		},
		Aggregation: aggregation,
		View:        monitoringpb.ListTimeSeriesRequest_FULL,
	}

	iter := a.lister.ListTimeSeries(ctx, req)
	for {
		ts, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list time series: %w", err)
		}

		samples := make([]eval.Sample, 0, len(ts.GetPoints()))
		for _, point := range ts.GetPoints() {
			samples = append(samples, eval.Sample{
				Timestamp: point.GetInterval().GetEndTime().AsTime(),
				Value:     typedValueString(point.GetValue()),
			})
		}

		series = append(series, eval.Series{
			Label:   seriesLabel(ts),
			Samples: samples,
		})
	}

	return series, nil
}

// typedValueString renders numeric values; other kinds render empty and are dropped
func typedValueString(v *monitoringpb.TypedValue) string {
	switch value := v.GetValue().(type) {
	case *monitoringpb.TypedValue_DoubleValue:
		return strconv.FormatFloat(value.DoubleValue, 'f', -1, 64)
	case *monitoringpb.TypedValue_Int64Value:
		return strconv.FormatInt(value.Int64Value, 10)
	case *monitoringpb.TypedValue_BoolValue:
		if value.BoolValue {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// seriesLabel renders the metric type and its labels in a stable order
func seriesLabel(ts *monitoringpb.TimeSeries) string {
	metric := ts.GetMetric()
	labels := metric.GetLabels()
	if len(labels) == 0 {
		return metric.GetType()
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return metric.GetType() + "{" + strings.Join(pairs, ",") + "}"
}
