// Package report renders burn rate reports and the error budget dashboard.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/policy"
	"github.com/samijaber1/aegis-budget/internal/slo"
	"github.com/samijaber1/aegis-budget/internal/storage"
)

const (
	ruleWidth    = 80
	sectionWidth = 40
)

// printer writes formatted lines and keeps the first write error
type printer struct {
	w   io.Writer
	p   *message.Printer
	err error
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, p: message.NewPrinter(language.English)}
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = p.p.Fprintf(p.w, format, args...)
}

func (p *printer) line(format string, args ...interface{}) {
	p.printf(format+"\n", args...)
}

func (p *printer) rule(char string, width int) {
	p.line("%s", strings.Repeat(char, width))
}

func (p *printer) header(def *slo.Definition) {
	p.line("Service: %s", def.Service)
	p.line("SLO Target: %v%%", def.TargetPercentage())
	p.line("Error Budget: %v%%", def.ErrorBudgetPolicy.BudgetPercentage*100)
}

// WriteText writes the burn rate report of set
func WriteText(w io.Writer, def *slo.Definition, lookbackHours int, set eval.ReportSet, rec *policy.Recommendation) error {
	p := newPrinter(w)

	p.line("")
	p.rule("=", ruleWidth)
	p.line("BURN RATE REPORT - ERROR BUDGET")
	p.rule("=", ruleWidth)
	p.header(def)
	p.line("Lookback: %d hours", lookbackHours)
	p.line("")

	for _, lr := range set {
		r := lr.Report
		p.line("WINDOW %s", strings.ToUpper(lr.Label))
		p.rule("-", sectionWidth)
		if r.QueryFailed {
			p.line("[WARNING] Data unavailable: query failed")
		}
		p.line("Burn Rate: %.2fx", r.BurnRate)
		p.line("Error Budget Consumed: %.2f%%", r.ErrorBudgetConsumed*100)
		p.line("Availability: %.4f%% (%d samples)", r.Availability*100, r.SampleCount)
		p.line("%s", Exhaustion(r.TimeToExhaustionHours))

		if len(r.TriggeredAlerts) == 0 {
			p.line("[OK] No alerts")
		} else {
			p.line("ALERTS:")
			for _, a := range r.TriggeredAlerts {
				p.line("  %s %s: %s", severityIcon(a.Severity), strings.ToUpper(string(a.Severity)), a.Description)
				p.line("     Current burn rate: %.2fx (threshold: %gx)", a.BurnRate, a.Threshold)
			}
		}
		p.line("")
	}

	if rec != nil {
		p.line("RECOMMENDATIONS")
		p.rule("-", sectionWidth)
		writeRecommendation(p, rec)
	}
	p.rule("=", ruleWidth)

	return p.err
}

func writeRecommendation(p *printer, rec *policy.Recommendation) {
	p.line("%s: %s", rec.Level, rec.Headline)
	for _, action := range rec.Actions {
		p.line("   - %s", action)
	}
	for _, w := range rec.Windows {
		if w.QueryFailed {
			p.line("   ! window %s: data unavailable", w.Window)
		}
	}
	if rec.ActiveAlerts > 0 {
		p.line("")
		p.line("%d active alert(s) - check thresholds", rec.ActiveAlerts)
	}
}

// WriteDashboard writes the error budget dashboard from the latest 1h entry
// and its trend. latest may be nil when nothing was recorded yet.
func WriteDashboard(w io.Writer, def *slo.Definition, latest *storage.HistoryEntry, trend eval.Trend, now time.Time) error {
	p := newPrinter(w)

	p.line("")
	p.rule("=", ruleWidth)
	p.line("ERROR BUDGET DASHBOARD")
	p.rule("=", ruleWidth)
	p.header(def)
	p.line("Last update: %s", now.Format("2006-01-02 15:04:05"))
	p.line("")

	if latest == nil {
		p.line("No data recorded yet")
	} else {
		r := latest.Report
		p.line("CURRENT METRICS (%s)", latest.WindowLabel)
		p.rule("-", sectionWidth)
		p.line("Burn Rate: %.2fx", r.BurnRate)
		p.line("Error Budget Consumed: %.2f%%", r.ErrorBudgetConsumed*100)
		p.line("Availability: %.2f%%", r.Availability*100)
		if r.TimeToExhaustionHours != nil {
			p.line("%s", Exhaustion(r.TimeToExhaustionHours))
		}

		if len(r.TriggeredAlerts) == 0 {
			p.line("[OK] No active alerts")
		} else {
			p.line("ACTIVE ALERTS:")
			for _, a := range r.TriggeredAlerts {
				p.line("  %s %s: %s", severityIcon(a.Severity), strings.ToUpper(string(a.Severity)), a.Description)
			}
		}
	}
	p.line("")

	if len(trend.Points) > 1 {
		p.line("TRENDS (last %d points)", len(trend.Points))
		p.rule("-", sectionWidth)
		p.line("Burn rate trend: [%s]", strings.ToUpper(string(trend.Direction)))
		p.line("Mean burn rate: %.2fx", trend.MeanBurnRate)
	}
	p.rule("=", ruleWidth)

	return p.err
}

// WriteJSON writes set as an object keyed by window label
func WriteJSON(w io.Writer, set eval.ReportSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// Exhaustion describes a time to exhaustion estimate
func Exhaustion(hours *float64) string {
	switch {
	case hours == nil:
		return "[OK] Error budget stable"
	case *hours == 0:
		return "[WARNING] Error budget exhausted!"
	default:
		return message.NewPrinter(language.English).Sprintf("Time to exhaustion: %.1f hours", *hours)
	}
}

func severityIcon(s slo.Severity) string {
	if s == slo.SeverityCritical {
		return "🔴"
	}
	return "🟡"
}
