package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dosanma1/forge-bundler/internal/architect"
	"github.com/dosanma1/forge-bundler/internal/ui"
	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

var (
	buildWatch         bool
	buildStatsJSON     bool
	buildConfiguration string
	buildOutputPath    string
)

var buildCmd = &cobra.Command{
	Use:   "build <project[:target[:configuration]]>",
	Short: "Bundle a project",
	Long: `Run a build target of a workspace project.

The target defaults to "build". Options come from forge.json, layered as
builder defaults, target options, the selected configurations and finally
the flags given here.

Examples:
  forge build web                        # One-shot build
  forge build web:build:production       # Build with a named configuration
  forge build web -c production,staging  # Layer several configurations
  forge build web --watch                # Rebuild on every change
  forge build web --stats-json           # Write stats.json next to the output`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "Rebuild when sources change")
	buildCmd.Flags().BoolVar(&buildStatsJSON, "stats-json", false, "Write stats.json into the output path")
	buildCmd.Flags().StringVarP(&buildConfiguration, "configuration", "c", "", "Named configurations to apply, comma separated")
	buildCmd.Flags().StringVar(&buildOutputPath, "output-path", "", "Override the output path")
}

func runBuild(cmd *cobra.Command, args []string) error {
	root, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	spec, err := workspace.ParseTargetSpec(args[0], "build")
	if err != nil {
		return err
	}
	if buildConfiguration != "" {
		spec.Configuration = buildConfiguration
	}

	overrides := map[string]any{}
	if cmd.Flags().Changed("watch") {
		overrides["watch"] = buildWatch
	}
	if cmd.Flags().Changed("stats-json") {
		overrides["statsJson"] = buildStatsJSON
	}
	if buildOutputPath != "" {
		overrides["outputPath"] = buildOutputPath
	}

	arch, err := newArchitect(root, ws)
	if err != nil {
		return err
	}
	_, opts, err := arch.Options(spec, overrides)
	if err != nil {
		return err
	}
	watching, _ := opts["watch"].(bool)

	printer.Title("%s Building %s", ui.IconPackage, spec)
	sub, err := arch.Schedule(cmd.Context(), spec, overrides)
	if err != nil {
		return err
	}
	return followTarget(cmd, spec, sub, !watching)
}

// followTarget prints every output until the run ends. A one-shot run that
// reported a failed build is an error; an interrupted run is not.
func followTarget(cmd *cobra.Command, spec workspace.TargetSpec, sub *stream.Subscription[architect.Output], oneShot bool) error {
	var spinner *ui.Spinner
	if oneShot {
		spinner = ui.StartSpinner(cmd.ErrOrStderr(), "Building "+spec.String())
		defer spinner.Stop()
	}

	failed := false
	for out := range sub.Results() {
		if spinner != nil {
			spinner.Stop()
		}
		printOutput(spec, out)
		failed = !out.Success
	}

	if err := sub.Err(); err != nil {
		return fmt.Errorf("%s: %w", spec, err)
	}
	if oneShot && failed && cmd.Context().Err() == nil {
		return fmt.Errorf("%s failed", spec)
	}
	return nil
}
