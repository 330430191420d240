package eval

import (
	"math"
	"time"
)

// ErrorBudgetConsumed calculates the consumed fraction of the error budget
// consumed = (1 - availability) / (1 - target), clamped to [0, 1].
// A target of 1 or more cannot be violated and always yields 0.
func ErrorBudgetConsumed(availability, sloTarget float64) float64 {
	errorBudget := 1 - sloTarget
	if errorBudget <= 0 {
		return 0
	}

	consumed := (1 - availability) / errorBudget
	if math.IsNaN(consumed) || consumed < 0 {
		return 0
	}
	if consumed > 1 {
		return 1
	}
	return consumed
}

// BurnRate calculates the budget consumed per hour of window
// burn_rate = consumed / duration_hours
func BurnRate(consumed float64, duration time.Duration) float64 {
	hours := duration.Hours()
	if hours <= 0 {
		return 0
	}
	return consumed / hours
}

// TimeToExhaustion estimates the hours left before the budget is spent, given
// the consumption over the trailing hour.
// Returns nil when the budget is not burning down and 0 when it is already spent.
func TimeToExhaustion(burnRate, recentConsumed float64) *float64 {
	if burnRate <= 0 || math.IsNaN(burnRate) {
		return nil
	}

	remaining := 1 - recentConsumed
	if remaining <= 0 {
		zero := 0.0
		return &zero
	}

	hours := remaining / burnRate
	return &hours
}
