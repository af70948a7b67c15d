// Package config loads bundler configuration files and resolves builder
// options.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/xos"
)

// DefaultOutputPath is used when a configuration names no output directory.
const DefaultOutputPath = "dist"

// Load reads a bundler configuration. YAML is read from .yaml and .yml
// files, JSON (comments allowed) from .json files. Relative paths are
// resolved against the file's directory unless context says otherwise.
func Load(path string) (*compiler.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	applyDefaults(cfg, filepath.Dir(abs))

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes a configuration by file extension without applying
// defaults.
func Parse(data []byte, ext string) (*compiler.Config, error) {
	var cfg compiler.Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return &cfg, nil
}

// Save writes cfg as YAML or JSON depending on the extension of path.
func Save(cfg *compiler.Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := xos.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that a configuration can be handed to a compiler.
func Validate(cfg *compiler.Config) error {
	if len(cfg.EntryPoints) == 0 {
		return fmt.Errorf("entryPoints is required")
	}
	for i, ep := range cfg.EntryPoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("entryPoints[%d] is empty", i)
		}
	}
	if cfg.WatchOptions.AggregateTimeout < 0 {
		return fmt.Errorf("watchOptions.aggregateTimeout must not be negative")
	}
	if ds := cfg.DevServer; ds != nil {
		if ds.Port < 0 || ds.Port > 65535 {
			return fmt.Errorf("devServer.port %d is out of range", ds.Port)
		}
		if ds.Socket != "" && ds.Port != 0 {
			return fmt.Errorf("devServer.socket and devServer.port are mutually exclusive")
		}
	}
	return nil
}

// applyDefaults sets default values for missing fields.
func applyDefaults(cfg *compiler.Config, dir string) {
	switch {
	case cfg.Context == "":
		cfg.Context = dir
	case !filepath.IsAbs(cfg.Context):
		cfg.Context = filepath.Join(dir, cfg.Context)
	}

	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}
	if !filepath.IsAbs(cfg.OutputPath) {
		cfg.OutputPath = filepath.Join(cfg.Context, cfg.OutputPath)
	}

	if cfg.Stats.IsZero() {
		cfg.Stats = compiler.StatsEnabled(true)
	}
	if cfg.Bundle == nil {
		enabled := true
		cfg.Bundle = &enabled
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Context)
	}
}
