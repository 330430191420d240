package policy

import (
	"fmt"

	"github.com/samijaber1/aegis-budget/internal/eval"
)

// Engine maps burn rate reports to operator recommendations
type Engine struct{}

// NewEngine creates a new recommendation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Recommend derives a recommendation from the highest burn rate of the set
func (e *Engine) Recommend(set eval.ReportSet) *Recommendation {
	rec := &Recommendation{
		Level:   LevelSTABLE,
		Reasons: []string{},
		Windows: make([]WindowSummary, 0, len(set)),
	}

	for i, lr := range set {
		summary := WindowSummary{
			Window:       lr.Label,
			BurnRate:     lr.Report.BurnRate,
			ActiveAlerts: len(lr.Report.TriggeredAlerts),
			QueryFailed:  lr.Report.QueryFailed,
		}
		rec.Windows = append(rec.Windows, summary)

		if i == 0 || summary.BurnRate > rec.MaxBurnRate {
			rec.MaxBurnRate = summary.BurnRate
			rec.MaxBurnWindow = summary.Window
		}

		// Active alert count is the largest of any single window
		if summary.ActiveAlerts > rec.ActiveAlerts {
			rec.ActiveAlerts = summary.ActiveAlerts
		}

		if summary.QueryFailed {
			rec.Reasons = append(rec.Reasons, fmt.Sprintf("window %s: data unavailable", lr.Label))
		}
	}

	rec.Level = LevelFor(rec.MaxBurnRate)
	rec.Headline, rec.Actions = guidance(rec.Level)

	if rec.MaxBurnWindow != "" {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf(
			"max burn rate %.2fx on window %s", rec.MaxBurnRate, rec.MaxBurnWindow))
	}
	if rec.ActiveAlerts > 0 {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf(
			"%d active alert(s), check thresholds", rec.ActiveAlerts))
	}

	return rec
}

// LevelFor returns the level that applies to a burn rate
func LevelFor(burnRate float64) Level {
	switch {
	case burnRate >= UrgentBurnRate:
		return LevelURGENT
	case burnRate >= AttentionBurnRate:
		return LevelATTENTION
	case burnRate >= WatchBurnRate:
		return LevelWATCH
	default:
		return LevelSTABLE
	}
}

func guidance(level Level) (string, []string) {
	switch level {
	case LevelURGENT:
		return "critical burn rate detected", []string{
			"check metrics immediately",
			"consider a rollback or emergency scale-up",
			"enable degraded mode if available",
		}
	case LevelATTENTION:
		return "elevated burn rate", []string{
			"watch metrics closely",
			"prepare a mitigation plan",
			"review recent deployments",
		}
	case LevelWATCH:
		return "burn rate normal but worth watching", []string{
			"continue normal monitoring",
			"review trends",
		}
	default:
		return "burn rate within normal limits", []string{
			"error budget is healthy",
			"routine monitoring is sufficient",
		}
	}
}
