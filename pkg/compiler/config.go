package compiler

import "time"

// DefaultAggregateTimeout is the quiet period after a change before a watch
// rebuild starts.
const DefaultAggregateTimeout = 20 * time.Millisecond

// Config is the bundler configuration a compiler is created from.
type Config struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Context     string   `yaml:"context,omitempty" json:"context,omitempty"`
	EntryPoints []string `yaml:"entryPoints" json:"entryPoints"`
	OutputPath  string   `yaml:"outputPath,omitempty" json:"outputPath,omitempty"`

	Watch        bool              `yaml:"watch,omitempty" json:"watch,omitempty"`
	WatchOptions WatchOptions      `yaml:"watchOptions,omitempty" json:"watchOptions,omitempty"`
	DevServer    *DevServerOptions `yaml:"devServer,omitempty" json:"devServer,omitempty"`
	Stats        StatsValue        `yaml:"stats,omitempty" json:"stats,omitempty"`

	Bundle     *bool             `yaml:"bundle,omitempty" json:"bundle,omitempty"`
	Minify     bool              `yaml:"minify,omitempty" json:"minify,omitempty"`
	Sourcemap  bool              `yaml:"sourcemap,omitempty" json:"sourcemap,omitempty"`
	Target     string            `yaml:"target,omitempty" json:"target,omitempty"`
	Format     string            `yaml:"format,omitempty" json:"format,omitempty"`
	Platform   string            `yaml:"platform,omitempty" json:"platform,omitempty"`
	Splitting  bool              `yaml:"splitting,omitempty" json:"splitting,omitempty"`
	Loader     map[string]string `yaml:"loader,omitempty" json:"loader,omitempty"`
	Define     map[string]string `yaml:"define,omitempty" json:"define,omitempty"`
	External   []string          `yaml:"external,omitempty" json:"external,omitempty"`
	PublicPath string            `yaml:"publicPath,omitempty" json:"publicPath,omitempty"`
}

// Clone returns a shallow copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	clone := *c
	return &clone
}

// BundleEnabled reports whether imports are inlined into the output. It
// defaults to true.
func (c *Config) BundleEnabled() bool {
	return c.Bundle == nil || *c.Bundle
}

// WatchOptions tune a watch build.
type WatchOptions struct {
	// AggregateTimeout is the delay in milliseconds between the last change
	// and the rebuild.
	AggregateTimeout int      `yaml:"aggregateTimeout,omitempty" json:"aggregateTimeout,omitempty"`
	Ignored          []string `yaml:"ignored,omitempty" json:"ignored,omitempty"`
	// Paths are additional directories to watch besides the context.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`
}

// Debounce returns the aggregate timeout as a duration.
func (o WatchOptions) Debounce() time.Duration {
	if o.AggregateTimeout <= 0 {
		return DefaultAggregateTimeout
	}
	return time.Duration(o.AggregateTimeout) * time.Millisecond
}

// DevServerOptions configure the development server wrapping a compiler.
type DevServerOptions struct {
	Host       string            `yaml:"host,omitempty" json:"host,omitempty"`
	Port       int               `yaml:"port,omitempty" json:"port,omitempty"`
	Socket     string            `yaml:"socket,omitempty" json:"socket,omitempty"`
	LiveReload *bool             `yaml:"liveReload,omitempty" json:"liveReload,omitempty"`
	Compress   bool              `yaml:"compress,omitempty" json:"compress,omitempty"`
	Proxy      map[string]string `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}

// LiveReloadEnabled reports whether browsers are told to reload after a
// build. It defaults to true.
func (o DevServerOptions) LiveReloadEnabled() bool {
	return o.LiveReload == nil || *o.LiveReload
}
