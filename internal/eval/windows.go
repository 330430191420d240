package eval

import (
	"time"

	"github.com/samijaber1/aegis-budget/internal/slo"
)

type catalogEntry struct {
	label string
	hours int
}

// catalog is the fixed set of observation windows, shortest first
var catalog = newCatalog(1, 6, 24, 168)

func newCatalog(hours ...int) []catalogEntry {
	entries := make([]catalogEntry, 0, len(hours))
	for _, h := range hours {
		entries = append(entries, catalogEntry{label: slo.WindowLabel(h), hours: h})
	}
	return entries
}

// RecentWindowLabel is the trailing window used for exhaustion estimates
const RecentWindowLabel = "1h"

// Windows returns the catalog windows ending at now whose length does not
// exceed lookbackHours, in catalog order.
func Windows(now time.Time, lookbackHours int) []Window {
	windows := make([]Window, 0, len(catalog))
	for _, entry := range catalog {
		if entry.hours > lookbackHours {
			continue
		}
		windows = append(windows, Window{
			Label: entry.label,
			Hours: entry.hours,
			Start: now.Add(-time.Duration(entry.hours) * time.Hour),
			End:   now,
		})
	}
	return windows
}

// WindowLabels returns every catalog label
func WindowLabels() []string {
	labels := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		labels = append(labels, entry.label)
	}
	return labels
}

// IsWindowLabel reports whether label names a catalog window
func IsWindowLabel(label string) bool {
	for _, entry := range catalog {
		if entry.label == label {
			return true
		}
	}
	return false
}
