package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dosanma1/forge-bundler/internal/config"
	"github.com/dosanma1/forge-bundler/internal/workspace"
)

var (
	cleanCache  bool
	cleanTarget string
)

var cleanCmd = &cobra.Command{
	Use:   "clean [project...]",
	Short: "Remove build output and caches",
	Long: `Remove the output directory of each project's build target.

Without arguments every project with a build target is cleaned.
Use --cache to also remove the workspace cache in .forge/cache.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanCache, "cache", false, "Also remove the workspace cache")
	cleanCmd.Flags().StringVar(&cleanTarget, "target", "build", "Target whose output is removed")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	root, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	projects := args
	if len(projects) == 0 {
		for _, name := range ws.ProjectNames() {
			if _, ok := ws.Projects[name].Targets[cleanTarget]; ok {
				projects = append(projects, name)
			}
		}
	}

	arch, err := newArchitect(root, ws)
	if err != nil {
		return err
	}

	for _, name := range projects {
		spec := workspace.TargetSpec{Project: name, Target: cleanTarget}
		_, opts, err := arch.Options(spec, nil)
		if err != nil {
			return err
		}

		out, err := outputPath(root, ws.Projects[name], opts)
		if err != nil {
			return fmt.Errorf("%s: %w", spec, err)
		}
		if err := removeDir(out); err != nil {
			return err
		}
	}

	if cleanCache {
		if err := removeDir(filepath.Join(root, ".forge", "cache")); err != nil {
			return err
		}
	}

	printer.Success("Clean completed successfully")
	return nil
}

// outputPath is where a bundler target writes, honouring an outputPath
// option over the one in its bundler config.
func outputPath(root string, project workspace.Project, opts map[string]any) (string, error) {
	projectRoot := filepath.Join(root, project.Root)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(projectRoot, p)
	}

	if p, ok := opts["outputPath"].(string); ok && p != "" {
		return resolve(p), nil
	}
	path, ok := opts["bundlerConfig"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("target has no bundlerConfig")
	}
	cfg, err := config.Load(resolve(path))
	if err != nil {
		return "", err
	}
	return cfg.OutputPath, nil
}

func removeDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	printer.Info("Removing %s...", dir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}
