package architect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError is one option that failed schema validation.
type FieldError struct {
	Field       string
	Description string
}

// ValidationError lists every option a builder rejected.
type ValidationError struct {
	Builder string
	Errors  []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Description))
	}
	return fmt.Sprintf("invalid options for %s: %s", e.Builder, strings.Join(parts, "; "))
}

// validateOptions checks opts against a builder schema. A builder without
// a schema accepts anything.
func validateOptions(builder string, schema []byte, opts Options) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(map[string]any(opts)))
	if err != nil {
		return fmt.Errorf("failed to validate options for %s: %w", builder, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Builder: builder}
	for _, desc := range result.Errors() {
		verr.Errors = append(verr.Errors, FieldError{Field: desc.Field(), Description: desc.Description()})
	}
	return verr
}

// schemaDefaults collects the top-level property defaults of a schema.
func schemaDefaults(schema []byte) (map[string]any, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	var doc struct {
		Properties map[string]struct {
			Default any `json:"default"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse builder schema: %w", err)
	}

	defaults := make(map[string]any)
	for name, prop := range doc.Properties {
		if prop.Default != nil {
			defaults[name] = prop.Default
		}
	}
	return defaults, nil
}
