// Package architect runs workspace targets through registered builders.
package architect

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

var (
	// ErrBuilderNotFound is returned when a target names an unregistered
	// builder.
	ErrBuilderNotFound = errors.New("builder not found")
	// ErrTargetNotFound is returned when the workspace has no such project
	// or target.
	ErrTargetNotFound = errors.New("target not found")
)

// Options are the resolved options of one target run.
type Options map[string]any

// Output is one event reported by a builder.
type Output struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Info    map[string]any `json:"info,omitempty"`
	// Duration is how long the build behind this output took. Zero means
	// unknown.
	Duration time.Duration `json:"-"`
}

// Context describes the target a builder runs for.
type Context struct {
	WorkspaceRoot string
	ProjectRoot   string
	SourceRoot    string
	Target        workspace.TargetSpec
	Logger        *slog.Logger
}

// Resolve makes p absolute against the project root.
func (c *Context) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

// Builder is the interface that all builders must implement.
type Builder interface {
	// Name returns the builder name (e.g., "@forge/bundler:build").
	Name() string

	// Schema returns the JSON schema the options are validated against.
	// Property defaults in the schema become the lowest-precedence options.
	Schema() []byte

	// Run returns the builder's events. Nothing happens until the result
	// is subscribed.
	Run(ctx *Context, opts Options) *stream.Observable[Output]
}

// Registry holds all registered builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates a new builder registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
	}
}

// Register registers a builder.
func (r *Registry) Register(builder Builder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := builder.Name()
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("builder %q already registered", name)
	}
	r.builders[name] = builder
	return nil
}

// Get retrieves a builder by name.
func (r *Registry) Get(name string) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	builder, exists := r.builders[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrBuilderNotFound, name)
	}
	return builder, nil
}

// List returns all registered builder names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
