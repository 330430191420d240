package policy

// Level is the urgency of an operator recommendation
type Level string

const (
	LevelURGENT    Level = "URGENT"
	LevelATTENTION Level = "ATTENTION"
	LevelWATCH     Level = "WATCH"
	LevelSTABLE    Level = "STABLE"
)

// Burn rate thresholds at which a level applies
const (
	UrgentBurnRate    = 6.0
	AttentionBurnRate = 2.0
	WatchBurnRate     = 1.0
)

// WindowSummary is the part of a window report a recommendation is based on
type WindowSummary struct {
	Window       string  `json:"window"`
	BurnRate     float64 `json:"burn_rate"`
	ActiveAlerts int     `json:"active_alerts"`
	QueryFailed  bool    `json:"query_failed"`
}

// Recommendation is the operator guidance derived from a report set
type Recommendation struct {
	Level         Level           `json:"level"`
	Headline      string          `json:"headline"`
	MaxBurnRate   float64         `json:"max_burn_rate"`
	MaxBurnWindow string          `json:"max_burn_window,omitempty"`
	ActiveAlerts  int             `json:"active_alerts"`
	Actions       []string        `json:"actions"`
	Reasons       []string        `json:"reasons"`
	Windows       []WindowSummary `json:"windows"`
}
