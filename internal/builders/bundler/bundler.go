// Package bundler provides the @forge/bundler builders.
package bundler

import (
	_ "embed"
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dosanma1/forge-bundler/internal/architect"
	"github.com/dosanma1/forge-bundler/internal/config"
	"github.com/dosanma1/forge-bundler/pkg/bundler"
	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/devserver"
	"github.com/dosanma1/forge-bundler/pkg/stream"
	"github.com/dosanma1/forge-bundler/pkg/xos"
)

// Builder names.
const (
	BuildName     = "@forge/bundler:build"
	DevServerName = "@forge/bundler:dev-server"
)

// StatsFileName is written into the output path when statsJson is set.
const StatsFileName = "stats.json"

var (
	//go:embed schemas/build.json
	buildSchema []byte
	//go:embed schemas/dev-server.json
	devServerSchema []byte
)

// Register adds both builders to reg. extra options are passed to every
// run, after the builder's own.
func Register(reg *architect.Registry, metrics prometheus.Gatherer, extra ...bundler.Option) error {
	if err := reg.Register(&Build{Extra: extra}); err != nil {
		return err
	}
	return reg.Register(&DevServer{Metrics: metrics, Extra: extra})
}

type buildOptions struct {
	BundlerConfig string `json:"bundlerConfig"`
	Watch         bool   `json:"watch"`
	StatsJSON     bool   `json:"statsJson"`
	OutputPath    string `json:"outputPath"`
}

// Build runs one-shot and watch builds.
type Build struct {
	Extra []bundler.Option
}

func (b *Build) Name() string   { return BuildName }
func (b *Build) Schema() []byte { return buildSchema }

func (b *Build) Run(ctx *architect.Context, opts architect.Options) *stream.Observable[architect.Output] {
	var o buildOptions
	if err := config.Decode(opts, &o); err != nil {
		return stream.Fail[architect.Output](err)
	}
	cfg, err := loadBundlerConfig(ctx, o.BundlerConfig)
	if err != nil {
		return stream.Fail[architect.Output](err)
	}
	cfg.Watch = o.Watch
	if o.OutputPath != "" {
		cfg.OutputPath = ctx.Resolve(o.OutputPath)
	}

	options := append([]bundler.Option{bundler.WithLogger(ctx.Logger)}, b.Extra...)
	return stream.Map(bundler.RunBundler(cfg, options...), func(r bundler.BuildResult) architect.Output {
		out := buildOutput(r)
		if o.StatsJSON && r.Stats != nil {
			path := filepath.Join(r.OutputPath, StatsFileName)
			if err := xos.WriteJSON(path, r.Stats, 0o644); err != nil {
				ctx.Logger.Error("failed to write stats", "path", path, "error", err)
			} else {
				out.Info["statsJson"] = path
			}
		}
		return out
	})
}

func buildOutput(r bundler.BuildResult) architect.Output {
	out := architect.Output{
		Success:  r.Success,
		Duration: r.Duration,
		Info: map[string]any{
			"outputPath":   r.OutputPath,
			"emittedFiles": r.EmittedFiles,
		},
	}
	if !r.Success {
		out.Error = firstError(r.Stats)
	}
	return out
}

func firstError(s *compiler.StatsCompilation) string {
	if s == nil || len(s.Errors) == 0 {
		return "build failed"
	}
	e := s.Errors[0]
	if e.ModuleName == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.ModuleName, e.Line, e.Column, e.Message)
}

type devServerOptions struct {
	BundlerConfig string            `json:"bundlerConfig"`
	Host          string            `json:"host"`
	Port          int               `json:"port"`
	Socket        string            `json:"socket"`
	LiveReload    *bool             `json:"liveReload"`
	Compress      bool              `json:"compress"`
	Proxy         map[string]string `json:"proxy"`
}

// DevServer serves a bundler configuration and rebuilds on change.
type DevServer struct {
	// Metrics, when set, is exposed on the dev server.
	Metrics prometheus.Gatherer
	Extra   []bundler.Option
}

func (d *DevServer) Name() string   { return DevServerName }
func (d *DevServer) Schema() []byte { return devServerSchema }

func (d *DevServer) Run(ctx *architect.Context, opts architect.Options) *stream.Observable[architect.Output] {
	var o devServerOptions
	if err := config.Decode(opts, &o); err != nil {
		return stream.Fail[architect.Output](err)
	}
	cfg, err := loadBundlerConfig(ctx, o.BundlerConfig)
	if err != nil {
		return stream.Fail[architect.Output](err)
	}

	server := compiler.DevServerOptions{
		Host:       o.Host,
		Port:       o.Port,
		LiveReload: o.LiveReload,
		Compress:   o.Compress,
		Proxy:      o.Proxy,
	}
	if o.Socket != "" {
		server.Socket = ctx.Resolve(o.Socket)
		server.Port = 0
	}

	options := []bundler.Option{
		bundler.WithLogger(ctx.Logger),
		bundler.WithDevServerConfig(server),
		bundler.WithDevServerFactory(devserver.DefaultFactory{
			Logger:       ctx.Logger,
			Metrics:      d.Metrics,
			WatchOptions: cfg.WatchOptions,
		}),
	}
	options = append(options, d.Extra...)

	return stream.Map(bundler.RunDevServer(cfg, options...), func(r bundler.DevServerResult) architect.Output {
		out := buildOutput(r.BuildResult)
		out.Info["port"] = r.Port
		out.Info["family"] = r.Family
		out.Info["address"] = r.Address
		if url := baseURL(r); url != "" {
			out.Info["baseUrl"] = url
		}
		return out
	})
}

// baseURL is where a browser reaches the server, or empty for a socket or
// before the server has started.
func baseURL(r bundler.DevServerResult) string {
	if r.Family == "" || r.Port == 0 {
		return ""
	}
	host := r.Address
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(r.Port)) + "/"
}

func loadBundlerConfig(ctx *architect.Context, path string) (*compiler.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("bundlerConfig is required")
	}
	cfg, err := config.Load(ctx.Resolve(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load bundler config: %w", err)
	}
	return cfg, nil
}
