package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/samijaber1/aegis-budget/internal/slo"
)

// TimeSeriesSource answers range queries for the availability signal.
// An empty result is not an error.
type TimeSeriesSource interface {
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]Series, error)
}

// Series is one labelled series returned by a range query
type Series struct {
	Label   string
	Samples []Sample
}

// Sample is a single raw point. Value is kept as the backend returned it so
// malformed values can be discarded during aggregation.
type Sample struct {
	Timestamp time.Time
	Value     string
}

// AvailabilityResult is the outcome of an availability computation.
// A failed query yields Value 0 with QueryErr set.
type AvailabilityResult struct {
	Value       float64
	SampleCount int
	QueryErr    error
}

// Window is an observation window of the fixed catalog, bound to a point in time
type Window struct {
	Label string
	Hours int
	Start time.Time
	End   time.Time
}

// Minutes returns the window length in minutes
func (w Window) Minutes() int {
	return w.Hours * 60
}

// TriggeredAlert is an alert rule that fired for a window
type TriggeredAlert struct {
	Name        string       `json:"name"`
	Severity    slo.Severity `json:"severity"`
	Description string       `json:"description"`
	BurnRate    float64      `json:"burn_rate"`
	Threshold   float64      `json:"threshold"`
}

// Report is the burn rate report of a single window
type Report struct {
	Availability          float64          `json:"availability"`
	SampleCount           int              `json:"sample_count"`
	QueryFailed           bool             `json:"query_failed"`
	ErrorBudgetConsumed   float64          `json:"error_budget_consumed"`
	BurnRate              float64          `json:"burn_rate"`
	TimeToExhaustionHours *float64         `json:"time_to_exhaustion_hours"`
	TriggeredAlerts       []TriggeredAlert `json:"triggered_alerts"`
	WindowHours           int              `json:"window_hours"`
	WindowStart           time.Time        `json:"window_start"`
	WindowEnd             time.Time        `json:"window_end"`
}

// Exhausted reports whether the budget is already spent
func (r Report) Exhausted() bool {
	return r.TimeToExhaustionHours != nil && *r.TimeToExhaustionHours == 0
}

// LabelledReport pairs a report with its window label
type LabelledReport struct {
	Label  string
	Report Report
}

// ReportSet holds the reports of one assembly in catalog order
type ReportSet []LabelledReport

// Get returns the report for a window label
func (s ReportSet) Get(label string) (Report, bool) {
	for _, lr := range s {
		if lr.Label == label {
			return lr.Report, true
		}
	}
	return Report{}, false
}

// Labels returns the window labels in order
func (s ReportSet) Labels() []string {
	labels := make([]string, 0, len(s))
	for _, lr := range s {
		labels = append(labels, lr.Label)
	}
	return labels
}

// MaxBurnRate returns the highest burn rate across windows
func (s ReportSet) MaxBurnRate() float64 {
	var max float64
	for _, lr := range s {
		if lr.Report.BurnRate > max {
			max = lr.Report.BurnRate
		}
	}
	return max
}

// MarshalJSON encodes the set as an object keyed by label in catalog order
func (s ReportSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lr := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lr.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(lr.Report)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by label, restoring catalog order
func (s *ReportSet) UnmarshalJSON(data []byte) error {
	var m map[string]Report
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	set := make(ReportSet, 0, len(m))
	for _, entry := range catalog {
		if r, ok := m[entry.label]; ok {
			set = append(set, LabelledReport{Label: entry.label, Report: r})
			delete(m, entry.label)
		}
	}
	// Labels outside the catalog go last, shortest window first
	known := len(set)
	for label, r := range m {
		set = append(set, LabelledReport{Label: label, Report: r})
	}
	extra := set[known:]
	sort.Slice(extra, func(i, j int) bool {
		return extra[i].Report.WindowHours < extra[j].Report.WindowHours
	})

	*s = set
	return nil
}
