// Package schema validates converted recommendations against the external
// JSON Schema contract before anything reaches staging.
package schema

import (
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"kbingest/internal/domain"
)

// Validator checks recommendation records against the compiled schema.
type Validator struct {
	schema *jsonschema.Schema
	text   string
}

// Load compiles the schema at path. The schema file is owned by the
// knowledge base, not the pipeline; a missing or broken schema is fatal.
func Load(path string) (*Validator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	compiled, err := jsonschema.CompileString(path, string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	return &Validator{schema: compiled, text: string(raw)}, nil
}

// Text returns the raw schema document for prompt embedding.
func (v *Validator) Text() string { return v.text }

// Validate checks one record. Schema violations come back as a
// domain.ValidationError with one flattened message per failing keyword;
// any other error means the record could not be checked at all.
func (v *Validator) Validate(record map[string]any) error {
	err := v.schema.Validate(toJSONValue(record))
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("validate record: %w", err)
	}

	var violations []string
	for _, detail := range ve.BasicOutput().Errors {
		if detail.Error == "" || detail.KeywordLocation == "" {
			continue
		}
		violations = append(violations, fmt.Sprintf("%s: %s", detail.InstanceLocation, detail.Error))
	}
	if len(violations) == 0 {
		violations = append(violations, ve.Error())
	}
	return &domain.ValidationError{Violations: violations}
}

// toJSONValue normalizes Go values into the shapes the validator expects
// (everything a round-trip through encoding/json would produce).
func toJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
