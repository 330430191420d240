package slo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity is the severity of a burn rate alert rule
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Definition is the parsed SLO definition of a single service.
// It is loaded once at startup and never mutated afterwards.
type Definition struct {
	Service           string            `yaml:"service" json:"service"`
	SLIs              SLIs              `yaml:"slis" json:"slis"`
	ErrorBudgetPolicy ErrorBudgetPolicy `yaml:"error_budget_policy" json:"error_budget_policy"`
	Alerting          Alerting          `yaml:"alerting" json:"alerting"`
}

// SLIs groups the service level indicators of a definition
type SLIs struct {
	Availability AvailabilitySLI `yaml:"availability" json:"availability"`
}

// AvailabilitySLI describes the availability indicator and its objective
type AvailabilitySLI struct {
	SLOTarget           float64     `yaml:"slo_target" json:"slo_target"`
	SLOTargetPercentage float64     `yaml:"slo_target_percentage,omitempty" json:"slo_target_percentage,omitempty"`
	Measurement         Measurement `yaml:"measurement" json:"measurement"`
}

// Measurement holds the opaque query handed to the time-series source
type Measurement struct {
	Query string `yaml:"query" json:"query"`
}

// ErrorBudgetPolicy is informational: consumption is always computed from the SLO target
type ErrorBudgetPolicy struct {
	BudgetPercentage float64 `yaml:"budget_percentage" json:"budget_percentage"`
}

// Alerting holds the burn rate alert rules
type Alerting struct {
	BurnRateAlerts AlertRules `yaml:"burn_rate_alerts" json:"burn_rate_alerts"`
}

// AlertRule triggers when the burn rate of a window of at least WindowMinutes
// reaches BurnRateThreshold.
type AlertRule struct {
	Name              string   `yaml:"-" json:"-"`
	BurnRateThreshold float64  `yaml:"burn_rate_threshold" json:"burn_rate_threshold"`
	WindowMinutes     int      `yaml:"window_minutes" json:"window_minutes"`
	Severity          Severity `yaml:"severity" json:"severity"`
	Description       string   `yaml:"description" json:"description"`
}

// AlertRules is an ordered set of named rules. Order is the declaration order
// of the configuration document.
type AlertRules []AlertRule

// UnmarshalYAML decodes a mapping of name -> rule keeping key order
func (r *AlertRules) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: burn_rate_alerts must be a mapping", value.Line)
	}

	rules := make(AlertRules, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, ruleNode := value.Content[i], value.Content[i+1]

		var rule AlertRule
		if err := ruleNode.Decode(&rule); err != nil {
			return fmt.Errorf("alert rule %q: %w", keyNode.Value, err)
		}
		rule.Name = keyNode.Value
		rules = append(rules, rule)
	}

	*r = rules
	return nil
}

// MarshalJSON encodes the rules as an object whose keys keep declaration order
func (r AlertRules) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rule := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(rule.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(rule)
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

// UnmarshalJSON decodes the object written by MarshalJSON keeping key order.
// JSON is decoded as YAML so UnmarshalYAML does the work.
func (r *AlertRules) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode alert rules: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("alert rules must be an object")
	}
	return r.UnmarshalYAML(doc.Content[0])
}

// Get returns the rule with the given name
func (r AlertRules) Get(name string) (AlertRule, bool) {
	for _, rule := range r {
		if rule.Name == name {
			return rule, true
		}
	}
	return AlertRule{}, false
}

// SLOTarget returns the availability objective
func (d *Definition) SLOTarget() float64 {
	return d.SLIs.Availability.SLOTarget
}

// AvailabilityQuery returns the query passed verbatim to the time-series source
func (d *Definition) AvailabilityQuery() string {
	return d.SLIs.Availability.Measurement.Query
}

// TargetPercentage returns the display percentage of the objective
func (d *Definition) TargetPercentage() float64 {
	if d.SLIs.Availability.SLOTargetPercentage > 0 {
		return d.SLIs.Availability.SLOTargetPercentage
	}
	return d.SLIs.Availability.SLOTarget * 100
}

// Rules returns the alert rules in declaration order
func (d *Definition) Rules() AlertRules {
	return d.Alerting.BurnRateAlerts
}

// DefinitionWithFile pairs a definition with its source file path
type DefinitionWithFile struct {
	Definition *Definition
	File       string
}

// ValidationError represents a validation error for a specific file
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}

// ValidationErrors is returned when a definition could not be loaded
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e), strings.Join(msgs, "; "))
}
