package api

import (
	"time"

	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/policy"
	"github.com/samijaber1/aegis-budget/internal/slo"
	"github.com/samijaber1/aegis-budget/internal/storage"
)

// SLOResponse describes the loaded SLO definition
type SLOResponse struct {
	Service             string         `json:"service"`
	SLOTarget           float64        `json:"slo_target"`
	SLOTargetPercentage float64        `json:"slo_target_percentage"`
	BudgetPercentage    float64        `json:"budget_percentage"`
	Query               string         `json:"query"`
	AlertRules          slo.AlertRules `json:"alert_rules"`
	Windows             []string       `json:"windows"`
}

// ReportResponse is a report set with its recommendation
type ReportResponse struct {
	Service        string                 `json:"service"`
	LookbackHours  int                    `json:"lookback_hours,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
	IsStale        bool                   `json:"is_stale"`
	Reports        eval.ReportSet         `json:"reports"`
	Recommendation *policy.Recommendation `json:"recommendation"`
}

// HistoryResponse lists recorded history entries, most recent first
type HistoryResponse struct {
	Entries []storage.HistoryEntry `json:"entries"`
	Total   int                    `json:"total"`
}

// AlertsResponse lists alert log records, newest first
type AlertsResponse struct {
	Alerts []storage.AlertRecord `json:"alerts"`
	Total  int                   `json:"total"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready       bool       `json:"ready"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Reasons     []string   `json:"reasons,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
