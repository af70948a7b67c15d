// Package daemon keeps watch and dev-server targets running in the
// background and reports their health over gRPC.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dosanma1/forge-bundler/internal/architect"
	"github.com/dosanma1/forge-bundler/internal/logging"
	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

// ErrAlreadyRunning is returned when a target is started twice.
var ErrAlreadyRunning = errors.New("target is already running")

// Scheduler starts target runs.
type Scheduler interface {
	Schedule(ctx context.Context, spec workspace.TargetSpec, overrides map[string]any) (*stream.Subscription[architect.Output], error)
}

// Config contains daemon configuration
type Config struct {
	// SocketPath is the Unix socket path for gRPC communication
	SocketPath string

	// WorkspaceDir is the workspace directory to serve
	WorkspaceDir string

	// Version is the daemon version
	Version string
}

// DefaultConfig returns default daemon configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		SocketPath:   filepath.Join(homeDir, ".forge", "daemon.sock"),
		WorkspaceDir: ".",
		Version:      "1.0.0",
	}
}

// Daemon is the Forge daemon server
type Daemon struct {
	config    *Config
	scheduler Scheduler
	logger    *slog.Logger

	server    *grpc.Server
	health    *health.Server
	listener  net.Listener
	startTime time.Time

	mu      sync.Mutex
	targets map[string]*run
	wg      sync.WaitGroup
	stopped bool
}

type run struct {
	sub    *stream.Subscription[architect.Output]
	status healthpb.HealthCheckResponse_ServingStatus
	builds int
	active bool
}

// New creates a new daemon instance
func New(config *Config, scheduler Scheduler, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Daemon{
		config:    config,
		scheduler: scheduler,
		logger:    logger,
		health:    health.NewServer(),
		targets:   make(map[string]*run),
	}
}

// Start listens on the configured unix socket.
func (d *Daemon) Start() error {
	socketDir := filepath.Dir(d.config.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A stale socket from a crashed daemon blocks Listen.
	if _, err := os.Stat(d.config.SocketPath); err == nil {
		if err := os.Remove(d.config.SocketPath); err != nil {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", d.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	d.Serve(listener)
	return nil
}

// Serve answers health checks on lis until Stop.
func (d *Daemon) Serve(lis net.Listener) {
	d.mu.Lock()
	d.listener = lis
	d.server = grpc.NewServer()
	d.startTime = time.Now()
	d.mu.Unlock()

	healthpb.RegisterHealthServer(d.server, d.health)
	d.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := d.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			d.logger.Error("gRPC server error", "error", err)
		}
	}()
}

// Run schedules a target and tracks its health as service
// "project:target". The service is NOT_SERVING until the first successful
// build and after the run ends.
func (d *Daemon) Run(ctx context.Context, spec workspace.TargetSpec, overrides map[string]any) error {
	name := spec.String()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("daemon is stopped")
	}
	if r, ok := d.targets[name]; ok && r.active {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	prev := d.targets[name]
	r := &run{status: healthpb.HealthCheckResponse_NOT_SERVING, active: true}
	d.targets[name] = r
	d.mu.Unlock()

	sub, err := d.scheduler.Schedule(ctx, spec, overrides)
	if err != nil {
		d.mu.Lock()
		if prev != nil {
			d.targets[name] = prev
		} else {
			delete(d.targets, name)
		}
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		sub.Close()
		return fmt.Errorf("daemon is stopped")
	}
	r.sub = sub
	d.wg.Add(1)
	d.mu.Unlock()

	d.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	go d.track(name, sub)
	return nil
}

func (d *Daemon) track(name string, sub *stream.Subscription[architect.Output]) {
	defer d.wg.Done()
	logger := d.logger.With("target", name)

	for out := range sub.Results() {
		status := healthpb.HealthCheckResponse_SERVING
		if !out.Success {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("build failed", "error", out.Error)
		} else {
			logger.Info("build succeeded", "info", out.Info)
		}
		d.setStatus(name, status, true)
	}

	if err := sub.Err(); err != nil {
		logger.Error("target stopped", "error", err)
	} else {
		logger.Info("target stopped")
	}
	d.mu.Lock()
	if r, ok := d.targets[name]; ok {
		r.active = false
	}
	d.mu.Unlock()
	d.setStatus(name, healthpb.HealthCheckResponse_NOT_SERVING, false)
}

func (d *Daemon) setStatus(name string, status healthpb.HealthCheckResponse_ServingStatus, build bool) {
	d.mu.Lock()
	if r, ok := d.targets[name]; ok {
		r.status = status
		if build {
			r.builds++
		}
	}
	d.mu.Unlock()
	d.health.SetServingStatus(name, status)
}

// Stop ends every run, then the gRPC server.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	subs := make([]*stream.Subscription[architect.Output], 0, len(d.targets))
	for _, r := range d.targets {
		if r.sub != nil {
			subs = append(subs, r.sub)
		}
	}
	server := d.server
	d.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	d.wg.Wait()

	d.health.Shutdown()
	if server != nil {
		server.GracefulStop()
	}
	if d.config.SocketPath != "" {
		os.Remove(d.config.SocketPath)
	}
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() *StatusInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := &StatusInfo{
		Running:      d.server != nil && !d.stopped,
		Version:      d.config.Version,
		WorkspaceDir: d.config.WorkspaceDir,
	}
	if !d.startTime.IsZero() {
		info.UptimeSeconds = int64(time.Since(d.startTime).Seconds())
	}
	for name, r := range d.targets {
		info.Targets = append(info.Targets, TargetStatus{Name: name, Status: r.status.String(), Builds: r.builds})
	}
	sort.Slice(info.Targets, func(i, j int) bool { return info.Targets[i].Name < info.Targets[j].Name })
	return info
}

// StatusInfo contains daemon status information
type StatusInfo struct {
	Running       bool
	Version       string
	UptimeSeconds int64
	WorkspaceDir  string
	Targets       []TargetStatus
}

// TargetStatus is the health of one running target.
type TargetStatus struct {
	Name   string
	Status string
	Builds int
}

// SocketPath returns the socket path for connecting to this daemon
func (d *Daemon) SocketPath() string {
	return d.config.SocketPath
}
