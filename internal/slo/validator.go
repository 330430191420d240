package slo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://aegis.dev/schemas/slo_config_v1.json"

//go:embed schemas/slo_config_v1.json
var configSchema []byte

// Validator handles SLO definition validation
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a validator for the embedded definition schema
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDocument validates raw YAML or JSON bytes against the schema
func (v *Validator) ValidateDocument(file string, data []byte) []ValidationError {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return []ValidationError{{File: file, Message: fmt.Sprintf("failed to parse document: %v", err)}}
	}

	// Round-trip through JSON so the validator sees canonical JSON values
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return []ValidationError{{File: file, Message: fmt.Sprintf("failed to convert to JSON: %v", err)}}
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonBytes))
	if err != nil {
		return []ValidationError{{File: file, Message: fmt.Sprintf("failed to convert to JSON: %v", err)}}
	}

	if err := v.schema.Validate(instance); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return extractSchemaErrors(file, validationErr)
		}
		return []ValidationError{{File: file, Message: err.Error()}}
	}

	return nil
}

// extractSchemaErrors converts JSON schema validation errors to ValidationErrors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	// Leaf causes carry the useful messages; the root only summarizes them
	if len(err.Causes) == 0 {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    path,
			Message: err.Error(),
		})
	}

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// ValidateDefinition applies the rules that JSON schema cannot express
func ValidateDefinition(file string, def *Definition) []ValidationError {
	var errors []ValidationError

	target := def.SLOTarget()
	if math.IsNaN(target) || target <= 0 || target >= 1 {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "slis.availability.slo_target",
			Message: fmt.Sprintf("slo_target must be in (0, 1), got %v", target),
		})
	}

	if strings.TrimSpace(def.AvailabilityQuery()) == "" {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "slis.availability.measurement.query",
			Message: "query is required",
		})
	}

	budget := def.ErrorBudgetPolicy.BudgetPercentage
	if budget < 0 || budget >= 1 {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "error_budget_policy.budget_percentage",
			Message: fmt.Sprintf("budget_percentage must be in [0, 1), got %v", budget),
		})
	}

	seen := make(map[string]struct{}, len(def.Rules()))
	for _, rule := range def.Rules() {
		path := "alerting.burn_rate_alerts." + rule.Name

		if _, dup := seen[rule.Name]; dup {
			errors = append(errors, ValidationError{File: file, Path: path, Message: "duplicate rule name"})
		}
		seen[rule.Name] = struct{}{}

		if rule.BurnRateThreshold <= 0 {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    path + ".burn_rate_threshold",
				Message: fmt.Sprintf("must be positive, got %v", rule.BurnRateThreshold),
			})
		}
		if rule.WindowMinutes <= 0 {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    path + ".window_minutes",
				Message: fmt.Sprintf("must be positive, got %d", rule.WindowMinutes),
			})
		}
		if !rule.Severity.Valid() {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    path + ".severity",
				Message: fmt.Sprintf("must be %q or %q, got %q", SeverityWarning, SeverityCritical, rule.Severity),
			})
		}
	}

	return errors
}
