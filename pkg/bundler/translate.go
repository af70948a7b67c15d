package bundler

import (
	"time"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// BuildResult is the outcome of one finished build.
type BuildResult struct {
	// Success is false when the compiler reported errors in the sources.
	Success      bool                       `json:"success"`
	Stats        *compiler.StatsCompilation `json:"stats,omitempty"`
	EmittedFiles []compiler.EmittedFile     `json:"emittedFiles,omitempty"`
	OutputPath   string                     `json:"outputPath"`
	// Duration is how long the build took, when the compiler reports it.
	Duration time.Duration `json:"-"`
}

// translate logs stats and converts them into a result.
func (o *options) translate(cfg *compiler.Config, stats compiler.Stats) BuildResult {
	o.logging(stats, cfg)

	result := BuildResult{Success: !stats.HasErrors()}
	if t, ok := stats.(compiler.TimedStats); ok {
		result.Duration = t.Duration()
	}
	if o.shouldProvideStats {
		result.Stats = stats.JSON(cfg.Stats.JSONOptions())
	}
	if c := stats.Compilation(); c != nil {
		result.OutputPath = c.OutputPath
		result.EmittedFiles = compiler.EmittedFiles(c)
	}
	return result
}
