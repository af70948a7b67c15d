package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dosanma1/forge-bundler/internal/architect"
	"github.com/dosanma1/forge-bundler/internal/ui"
	"github.com/dosanma1/forge-bundler/internal/workspace"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate forge.json configuration",
	Long: `Validates forge.json against the workspace JSON Schema, then checks that
every target names a known builder and resolves to options that builder
accepts.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	root, err := findWorkspaceRoot()
	if err != nil {
		return fmt.Errorf("not in a forge workspace: %w", err)
	}

	printer.Title("%s Validating %s...", ui.IconSearch, workspace.ConfigFileName)

	data, err := os.ReadFile(filepath.Join(root, workspace.ConfigFileName))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", workspace.ConfigFileName, err)
	}

	validator, err := workspace.NewValidator()
	if err != nil {
		return err
	}

	schemaErrs, err := validator.ValidateDocument(data)
	if err != nil {
		return err
	}
	if len(schemaErrs) > 0 {
		printer.Error("Validation failed with the following errors:")
		for i, e := range schemaErrs {
			printer.Info("%d. %s", i+1, e.Description)
			printer.Detail("Field: %s", e.Field)
			printer.Detail("Type: %s", e.Type)
		}
		return fmt.Errorf("validation failed with %d errors", len(schemaErrs))
	}

	ws, err := workspace.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", workspace.ConfigFileName, err)
	}
	if err := validator.Validate(ws); err != nil {
		printer.Error("%v", err)
		return fmt.Errorf("validation failed")
	}

	arch, err := newArchitect(root, ws)
	if err != nil {
		return err
	}
	if failures := validateTargets(arch); failures > 0 {
		return fmt.Errorf("validation failed with %d invalid targets", failures)
	}

	printer.Success("%s is valid!", workspace.ConfigFileName)
	return nil
}

// validateTargets resolves every target and configuration and reports the
// ones whose options do not satisfy their builder.
func validateTargets(arch *architect.Architect) int {
	failures := 0
	for _, project := range arch.Workspace().ListProjects() {
		for _, name := range sortedKeys(project.Targets) {
			target := project.Targets[name]

			specs := []workspace.TargetSpec{{Project: project.Name, Target: name}}
			for _, c := range sortedKeys(target.Configurations) {
				specs = append(specs, workspace.TargetSpec{Project: project.Name, Target: name, Configuration: c})
			}

			for _, spec := range specs {
				if _, _, err := arch.Options(spec, nil); err != nil {
					failures++
					printer.Error("%s: %v", spec, err)
					continue
				}
				logger.Debug("target is valid", "target", spec.String())
			}
		}
	}
	return failures
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
