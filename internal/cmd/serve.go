package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dosanma1/forge-bundler/internal/ui"
	"github.com/dosanma1/forge-bundler/internal/workspace"
)

var (
	serveHost          string
	servePort          int
	serveSocket        string
	serveNoLiveReload  bool
	serveConfiguration string
)

var serveCmd = &cobra.Command{
	Use:   "serve <project[:target[:configuration]]>",
	Short: "Serve a project with live reload",
	Long: `Run a dev-server target of a workspace project.

The target defaults to "serve". The server rebuilds on change and tells
connected browsers to reload. Press Ctrl+C to stop it.

Examples:
  forge serve web
  forge serve web --port 0              # Pick a free port
  forge serve web --socket /tmp/web.sock`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "Listen on a unix socket")
	serveCmd.Flags().BoolVar(&serveNoLiveReload, "no-live-reload", false, "Do not reload browsers after a build")
	serveCmd.Flags().StringVarP(&serveConfiguration, "configuration", "c", "", "Named configurations to apply, comma separated")
}

func runServe(cmd *cobra.Command, args []string) error {
	root, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	spec, err := workspace.ParseTargetSpec(args[0], "serve")
	if err != nil {
		return err
	}
	if serveConfiguration != "" {
		spec.Configuration = serveConfiguration
	}

	overrides := map[string]any{}
	if serveHost != "" {
		overrides["host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		overrides["port"] = servePort
	}
	if serveSocket != "" {
		overrides["socket"] = serveSocket
	}
	if serveNoLiveReload {
		overrides["liveReload"] = false
	}

	arch, err := newArchitect(root, ws)
	if err != nil {
		return err
	}

	printer.Title("%s Serving %s", ui.IconRocket, spec)
	sub, err := arch.Schedule(cmd.Context(), spec, overrides)
	if err != nil {
		return err
	}
	return followTarget(cmd, spec, sub, false)
}
