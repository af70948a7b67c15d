package workspace

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/forge.schema.json
var schemaBytes []byte

var (
	// namePattern matches valid kebab-case names.
	namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)
)

// SchemaError is one schema violation.
type SchemaError struct {
	Field       string
	Type        string
	Description string
}

func (e SchemaError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Validator validates workspace configurations.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded forge.json schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to load JSON schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateDocument checks raw forge.json content against the schema.
func (v *Validator) ValidateDocument(data []byte) ([]SchemaError, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(jsonc.ToJSON(data)))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]SchemaError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, SchemaError{
			Field:       desc.Field(),
			Type:        desc.Type(),
			Description: desc.Description(),
		})
	}
	return errs, nil
}

// Validate performs the semantic checks the schema cannot express.
func (v *Validator) Validate(config *Config) error {
	if err := v.validateWorkspace(&config.Workspace); err != nil {
		return fmt.Errorf("workspace validation failed: %w", err)
	}

	names := config.ProjectNames()
	for _, name := range names {
		if err := v.validateProject(name, config.Projects[name]); err != nil {
			return fmt.Errorf("project %q: %w", name, err)
		}
	}
	return nil
}

func (v *Validator) validateWorkspace(ws *WorkspaceMetadata) error {
	if ws.Name == "" {
		return fmt.Errorf("workspace name is required")
	}
	if err := ValidateName(ws.Name); err != nil {
		return fmt.Errorf("invalid workspace name: %w", err)
	}
	return nil
}

func (v *Validator) validateProject(key string, project Project) error {
	if err := ValidateName(key); err != nil {
		return fmt.Errorf("invalid project name: %w", err)
	}
	if project.Name != "" && project.Name != key {
		return fmt.Errorf("project key %q does not match project name %q", key, project.Name)
	}
	if project.Root == "" {
		return fmt.Errorf("project root is required")
	}

	targets := make([]string, 0, len(project.Targets))
	for name := range project.Targets {
		targets = append(targets, name)
	}
	sort.Strings(targets)

	for _, name := range targets {
		t := project.Targets[name]
		if !strings.Contains(t.Builder, ":") {
			return fmt.Errorf("target %q: builder %q must look like package:name", name, t.Builder)
		}
		if t.DefaultConfiguration != "" {
			if _, ok := t.Configurations[t.DefaultConfiguration]; !ok {
				return fmt.Errorf("target %q: default configuration %q is not defined", name, t.DefaultConfiguration)
			}
		}
	}
	return nil
}

// ValidateName validates a name follows kebab-case convention.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must be kebab-case (lowercase letters, numbers, and hyphens only, starting with a letter)")
	}
	return nil
}
