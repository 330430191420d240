package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/slo"
)

// MetricFixture represents a metric fixture file format.
// Windows are keyed by duration strings such as "1h" or "7d".
type MetricFixture struct {
	Windows map[string]WindowData `json:"windows"`

	durations map[time.Duration]WindowData
}

// WindowData describes the samples returned for a window
type WindowData struct {
	// Availability is emitted once per step across the window. Nil yields no samples.
	Availability *float64 `json:"availability,omitempty"`
	// Values are appended verbatim, malformed ones included
	Values []string `json:"values,omitempty"`
	// Error simulates a failing backend
	Error string `json:"error,omitempty"`
}

// Adapter is a synthetic time-series source that reads from JSON fixtures
type Adapter struct {
	mu       sync.RWMutex
	fixtures map[string]*MetricFixture
}

var _ eval.TimeSeriesSource = (*Adapter)(nil)

// NewAdapter creates a new synthetic adapter
func NewAdapter() *Adapter {
	return &Adapter{
		fixtures: make(map[string]*MetricFixture),
	}
}

// LoadFixture loads a metric fixture from a JSON file
func (a *Adapter) LoadFixture(name string, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture MetricFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	return a.SetFixture(name, &fixture)
}

// SetFixture directly sets a fixture (useful for testing)
func (a *Adapter) SetFixture(name string, fixture *MetricFixture) error {
	durations := make(map[time.Duration]WindowData, len(fixture.Windows))
	for key, data := range fixture.Windows {
		d, err := slo.ParseWindowLabel(key)
		if err != nil {
			return fmt.Errorf("fixture %s: window %q: %w", name, key, err)
		}
		durations[d] = data
	}
	fixture.durations = durations

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fixtures[name] = fixture
	return nil
}

// QueryRange implements eval.TimeSeriesSource.
// Query format: "fixture:name" or just the fixture name. A window missing
// from the fixture has no data.
func (a *Adapter) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]eval.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fixtureName := FixtureName(query)
	if fixtureName == "" {
		return nil, fmt.Errorf("invalid query format: %s", query)
	}

	a.mu.RLock()
	fixture, exists := a.fixtures[fixtureName]
	a.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("fixture not found: %s", fixtureName)
	}

	windowData, exists := fixture.durations[end.Sub(start)]
	if !exists {
		return nil, nil
	}
	if windowData.Error != "" {
		return nil, fmt.Errorf("synthetic failure: %s", windowData.Error)
	}

	var samples []eval.Sample
	if windowData.Availability != nil && step > 0 {
		value := strconv.FormatFloat(*windowData.Availability, 'f', -1, 64)
		for ts := start.Add(step); !ts.After(end); ts = ts.Add(step) {
			samples = append(samples, eval.Sample{Timestamp: ts, Value: value})
		}
	}
	for _, raw := range windowData.Values {
		samples = append(samples, eval.Sample{Timestamp: end, Value: raw})
	}

	return []eval.Series{{Label: fixtureName, Samples: samples}}, nil
}

// FixtureName extracts the fixture name from a query string
func FixtureName(query string) string {
	return strings.TrimSpace(strings.TrimPrefix(query, "fixture:"))
}

// Float returns a pointer to v, for building fixtures in code
func Float(v float64) *float64 {
	return &v
}
