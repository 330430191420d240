package eval

import "github.com/samijaber1/aegis-budget/internal/slo"

// EvaluateRules returns the rules triggered by burnRate over a window of
// windowMinutes, in declaration order. A rule triggers when the burn rate
// reaches its threshold and the window is at least as long as the rule's.
func EvaluateRules(rules slo.AlertRules, burnRate float64, windowMinutes int) []TriggeredAlert {
	triggered := make([]TriggeredAlert, 0)
	for _, rule := range rules {
		if burnRate >= rule.BurnRateThreshold && windowMinutes >= rule.WindowMinutes {
			triggered = append(triggered, TriggeredAlert{
				Name:        rule.Name,
				Severity:    rule.Severity,
				Description: rule.Description,
				BurnRate:    burnRate,
				Threshold:   rule.BurnRateThreshold,
			})
		}
	}
	return triggered
}
