// Package cmd implements the forge command line.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dosanma1/forge-bundler/internal/logging"
	"github.com/dosanma1/forge-bundler/internal/ui"
)

var (
	logLevel  string
	logFormat string
	noColor   bool

	logger  *slog.Logger
	printer *ui.Printer
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Forge - build and serve workspace projects",
	Long: `Forge runs the targets of a forge.json workspace.

Build targets bundle a project once or on every change, dev-server targets
serve the bundle with live reload. Cancelling with Ctrl+C stops the
compiler, the watcher and the server.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		printer = ui.NewPrinter(cmd.OutOrStdout(), !noColor && os.Getenv("NO_COLOR") == "")
		return nil
	},
}

// Execute runs the command line. Cancelling ctx stops a running target.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.LevelInfo, "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format (text|json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}
