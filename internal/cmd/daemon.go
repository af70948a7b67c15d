package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	bundlerbuilders "github.com/dosanma1/forge-bundler/internal/builders/bundler"
	"github.com/dosanma1/forge-bundler/internal/daemon"
	"github.com/dosanma1/forge-bundler/internal/ui"
	"github.com/dosanma1/forge-bundler/internal/workspace"
)

var (
	daemonSocket  string
	daemonTimeout time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep targets running in the background",
	Long: `Run targets in a long-lived process and report their health over a
unix socket using the gRPC health protocol. Each target is a health service
named "project:target" that is SERVING after a successful build.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start <project[:target[:configuration]]>...",
	Short: "Start the daemon in the foreground",
	Long: `Start the daemon and run the given targets until interrupted.

Build targets are run in watch mode. The target defaults to "build".

Examples:
  forge daemon start web api
  forge daemon start web:serve`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDaemonStart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status [project:target]",
	Short: "Query the daemon or one of its targets",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd, daemonStatusCmd)
	daemonCmd.PersistentFlags().StringVar(&daemonSocket, "socket", daemon.DefaultConfig().SocketPath, "Unix socket of the daemon")
	daemonStatusCmd.Flags().DurationVar(&daemonTimeout, "timeout", 5*time.Second, "How long to wait for an answer")
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	root, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	arch, err := newArchitect(root, ws)
	if err != nil {
		return err
	}

	cfg := daemon.DefaultConfig()
	cfg.SocketPath = daemonSocket
	cfg.WorkspaceDir = root
	cfg.Version = rootCmd.Version

	d := daemon.New(cfg, arch, logger)
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	ctx := cmd.Context()
	for _, arg := range args {
		spec, err := workspace.ParseTargetSpec(arg, "build")
		if err != nil {
			return err
		}
		_, target, err := ws.Target(spec)
		if err != nil {
			return err
		}

		var overrides map[string]any
		if target.Builder == bundlerbuilders.BuildName {
			overrides = map[string]any{"watch": true}
		}
		if err := d.Run(ctx, spec, overrides); err != nil {
			return err
		}
		printer.Info("%s %s started", ui.IconRocket, spec)
	}

	printer.Success("Daemon listening on %s", d.SocketPath())
	<-ctx.Done()
	printer.Info("Stopping daemon...")
	return d.Stop()
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	client, err := daemon.Dial(daemonSocket)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	service := ""
	if len(args) == 1 {
		spec, err := workspace.ParseTargetSpec(args[0], "build")
		if err != nil {
			return err
		}
		service = spec.String()
	}

	status, err := client.Check(ctx, service)
	if err != nil {
		return fmt.Errorf("daemon is not reachable on %s: %w", daemonSocket, err)
	}
	if service == "" {
		service = "daemon"
	}
	printer.Info("%s: %s", service, status)
	return nil
}
