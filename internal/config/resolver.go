package config

import (
	"encoding/json"
	"fmt"

	"github.com/dosanma1/forge-bundler/internal/workspace"
)

// Resolver handles option precedence: CLI overrides > named configurations
// > target options > builder defaults.
type Resolver struct {
	target   *workspace.Target
	defaults map[string]any
}

// NewResolver creates a resolver for one target. defaults are the builder's
// own defaults and may be nil.
func NewResolver(target *workspace.Target, defaults map[string]any) *Resolver {
	return &Resolver{
		target:   target,
		defaults: defaults,
	}
}

// Resolve merges the option layers. Configurations apply in the order given,
// later ones winning; with none given the target's default configuration
// is used.
func (r *Resolver) Resolve(configurations []string, overrides map[string]any) (map[string]any, error) {
	options := make(map[string]any, len(r.defaults)+len(r.target.Options)+len(overrides))
	merge(options, r.defaults)
	merge(options, r.target.Options)

	if len(configurations) == 0 && r.target.DefaultConfiguration != "" {
		configurations = []string{r.target.DefaultConfiguration}
	}
	for _, name := range configurations {
		layer, ok := r.target.Configurations[name]
		if !ok {
			return nil, fmt.Errorf("configuration %q is not defined for builder %s", name, r.target.Builder)
		}
		merge(options, layer)
	}

	merge(options, overrides)
	return options, nil
}

// merge copies src over dst. A nil value in src removes the key, so an
// override can unset an option.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

// Decode converts resolved options into a typed options struct using its
// JSON tags.
func Decode(options map[string]any, out any) error {
	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	return nil
}
