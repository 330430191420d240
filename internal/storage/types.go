package storage

import (
	"context"
	"errors"
	"time"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/slo"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// HistoryStore persists burn rate reports for trend queries. It is append-only.
type HistoryStore interface {
	// Append persists one tick's entries and their triggered alerts atomically
	Append(ctx context.Context, entries []HistoryEntry) error

	// QueryRecent returns entries with a timestamp in [now-hours, now], most recent first
	QueryRecent(ctx context.Context, now time.Time, hours int) ([]HistoryEntry, error)

	// Latest returns the most recent entry of a window
	Latest(ctx context.Context, windowLabel string) (*HistoryEntry, error)

	// QueryAlerts retrieves alert records with optional filtering, newest first
	QueryAlerts(ctx context.Context, filter AlertFilter) ([]AlertRecord, error)

	// Close closes the storage connection
	Close() error
}

// HistoryEntry is a report of one window recorded at Timestamp
type HistoryEntry struct {
	ID          int64       `json:"id"`
	Service     string      `json:"service"`
	WindowLabel string      `json:"window"`
	WindowHours int         `json:"window_hours"`
	Timestamp   time.Time   `json:"timestamp"`
	Report      eval.Report `json:"report"`
}

// AlertFilter defines filtering options for alert queries
type AlertFilter struct {
	Service     string
	WindowLabel string
	Severity    slo.Severity
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

// AlertRecord is a triggered alert as recorded in the alert log
type AlertRecord struct {
	ID          int64        `json:"id"`
	Service     string       `json:"service"`
	WindowLabel string       `json:"window"`
	Name        string       `json:"name"`
	Severity    slo.Severity `json:"severity"`
	Message     string       `json:"message"`
	BurnRate    float64      `json:"burn_rate"`
	Threshold   float64      `json:"threshold"`
	Resolved    bool         `json:"resolved"`
	Timestamp   time.Time    `json:"timestamp"`
}

// EntriesFromReports builds the history entries of one assembled report set
func EntriesFromReports(service string, ts time.Time, set eval.ReportSet) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(set))
	for _, lr := range set {
		entries = append(entries, HistoryEntry{
			Service:     service,
			WindowLabel: lr.Label,
			WindowHours: lr.Report.WindowHours,
			Timestamp:   ts,
			Report:      lr.Report,
		})
	}
	return entries
}

// TrendPoints projects entries onto the burn rate series used by trend analysis.
// Entry order is kept.
func TrendPoints(entries []HistoryEntry) []eval.TrendPoint {
	points := make([]eval.TrendPoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, eval.TrendPoint{
			Window:    e.WindowLabel,
			Timestamp: e.Timestamp,
			BurnRate:  e.Report.BurnRate,
		})
	}
	return points
}
