// Package bundler drives a callback-based compiler and reports its builds as
// a cancellable stream of results.
//
// RunBundler covers one-shot and watch builds; RunDevServer covers builds
// triggered by a development server. Both release the compiler, and the
// watcher or server wrapping it, when the subscription ends.
package bundler

import (
	"context"
	"log/slog"

	"github.com/dosanma1/forge-bundler/internal/esbuild"
	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/devserver"
)

// LoggingCallback is invoked once per finished build, before its result is
// emitted.
type LoggingCallback func(stats compiler.Stats, cfg *compiler.Config)

// CompilerFactory creates the compiler a subscription drives.
type CompilerFactory interface {
	NewCompiler(ctx context.Context, cfg *compiler.Config) (compiler.Compiler, error)
}

// CompilerFactoryFunc adapts a function to CompilerFactory.
type CompilerFactoryFunc func(ctx context.Context, cfg *compiler.Config) (compiler.Compiler, error)

func (f CompilerFactoryFunc) NewCompiler(ctx context.Context, cfg *compiler.Config) (compiler.Compiler, error) {
	return f(ctx, cfg)
}

// Option configures RunBundler and RunDevServer.
type Option func(*options)

type options struct {
	shouldProvideStats bool
	devServerConfig    *compiler.DevServerOptions
	logging            LoggingCallback
	compilerFactory    CompilerFactory
	devServerFactory   devserver.Factory
	logger             *slog.Logger
}

// WithStats controls whether results carry structured stats. Defaults to
// true.
func WithStats(provide bool) Option {
	return func(o *options) { o.shouldProvideStats = provide }
}

// WithDevServerConfig overrides the dev server section of the configuration.
func WithDevServerConfig(cfg compiler.DevServerOptions) Option {
	return func(o *options) { o.devServerConfig = &cfg }
}

// WithLogging replaces the default stats logging.
func WithLogging(cb LoggingCallback) Option {
	return func(o *options) { o.logging = cb }
}

// WithCompilerFactory replaces the default esbuild compiler.
func WithCompilerFactory(f CompilerFactory) Option {
	return func(o *options) { o.compilerFactory = f }
}

// WithDevServerFactory replaces the default dev server.
func WithDevServerFactory(f devserver.Factory) Option {
	return func(o *options) { o.devServerFactory = f }
}

// WithLogger sets the host logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts []Option) *options {
	o := &options{shouldProvideStats: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.logging == nil {
		o.logging = logStats(o.logger)
	}
	if o.compilerFactory == nil {
		o.compilerFactory = CompilerFactoryFunc(func(_ context.Context, cfg *compiler.Config) (compiler.Compiler, error) {
			return esbuild.New(cfg, esbuild.WithLogger(o.logger))
		})
	}
	return o
}

// logStats writes the textual stats summary at the configured verbosity.
func logStats(logger *slog.Logger) LoggingCallback {
	return func(stats compiler.Stats, cfg *compiler.Config) {
		if text := stats.String(cfg.Stats.StringOptions()); text != "" {
			logger.Info(text)
		}
	}
}

func (o *options) devServerOptions(cfg *compiler.Config) compiler.DevServerOptions {
	switch {
	case o.devServerConfig != nil:
		return *o.devServerConfig
	case cfg.DevServer != nil:
		return *cfg.DevServer
	default:
		return compiler.DevServerOptions{}
	}
}

func (o *options) devServerFactoryFor(cfg *compiler.Config) devserver.Factory {
	if o.devServerFactory != nil {
		return o.devServerFactory
	}
	return devserver.DefaultFactory{Logger: o.logger, WatchOptions: cfg.WatchOptions}
}
