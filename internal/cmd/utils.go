package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dosanma1/forge-bundler/internal/architect"
	bundlerbuilders "github.com/dosanma1/forge-bundler/internal/builders/bundler"
	"github.com/dosanma1/forge-bundler/internal/metrics"
	"github.com/dosanma1/forge-bundler/internal/ui"
	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// findWorkspaceRoot finds the workspace root by looking for forge.json
func findWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := workspace.FindRoot(dir)
	if err != nil {
		return "", fmt.Errorf("%w in current directory or any parent directory", err)
	}
	return root, nil
}

// loadWorkspace finds and loads the workspace configuration.
func loadWorkspace() (string, *workspace.Config, error) {
	root, err := findWorkspaceRoot()
	if err != nil {
		return "", nil, fmt.Errorf("not in a forge workspace: %w", err)
	}
	ws, err := workspace.LoadConfig(root)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load workspace config: %w", err)
	}
	return root, ws, nil
}

// newArchitect wires the builders, metrics and logger for one command.
func newArchitect(root string, ws *workspace.Config) (*architect.Architect, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	builders := architect.NewRegistry()
	if err := bundlerbuilders.Register(builders, reg); err != nil {
		return nil, err
	}

	return architect.New(root, ws, builders,
		architect.WithLogger(logger),
		architect.WithRecorder(metrics.NewRecorder(reg)),
	), nil
}

// printOutput reports one builder event.
func printOutput(spec workspace.TargetSpec, out architect.Output) {
	if !out.Success {
		printer.Error("%s failed: %s", spec, out.Error)
		return
	}

	if url, ok := out.Info["baseUrl"].(string); ok {
		printer.Success("%s is serving at %s", spec, url)
	} else if addr, ok := out.Info["address"].(string); ok && addr != "" {
		printer.Success("%s is serving on %s", spec, addr)
	} else {
		printer.Success("%s built into %v", spec, out.Info["outputPath"])
	}

	if files, ok := out.Info["emittedFiles"].([]compiler.EmittedFile); ok {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.File)
		}
		sort.Strings(names)
		if len(names) > 0 {
			printer.Detail("%s %s", ui.IconPackage, strings.Join(names, ", "))
		}
	}
	if path, ok := out.Info["statsJson"].(string); ok {
		printer.Detail("stats written to %s", path)
	}
}
