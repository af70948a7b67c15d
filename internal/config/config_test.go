package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "bundler.yaml", `
entryPoints: [src/main.ts]
stats:
  preset: minimal
watchOptions:
  aggregateTimeout: 50
devServer:
  port: 4300
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dir := filepath.Dir(path)
	if cfg.Context != dir {
		t.Errorf("Context = %q, want %q", cfg.Context, dir)
	}
	if cfg.OutputPath != filepath.Join(dir, DefaultOutputPath) {
		t.Errorf("OutputPath = %q", cfg.OutputPath)
	}
	if cfg.Stats.IsBool() || cfg.Stats.Options.Preset != compiler.PresetMinimal {
		t.Errorf("unexpected stats %+v", cfg.Stats)
	}
	if !cfg.BundleEnabled() || cfg.Name != filepath.Base(dir) {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.DevServer == nil || cfg.DevServer.Port != 4300 || cfg.WatchOptions.AggregateTimeout != 50 {
		t.Errorf("unexpected dev server/watch options %+v %+v", cfg.DevServer, cfg.WatchOptions)
	}
}

func TestLoadJSONWithComments(t *testing.T) {
	path := writeConfig(t, "bundler.json", `{
		// entry
		"entryPoints": ["main.ts"],
		"context": "web",
		"outputPath": "/tmp/out",
		"stats": false,
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Context != filepath.Join(filepath.Dir(path), "web") {
		t.Errorf("relative context not resolved: %q", cfg.Context)
	}
	if cfg.OutputPath != "/tmp/out" {
		t.Errorf("absolute output path changed: %q", cfg.OutputPath)
	}
	if cfg.Stats.StringOptions().Preset != compiler.PresetNone {
		t.Errorf("stats false should silence the summary")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{name: "missing entry points", file: "a.yaml", content: "outputPath: dist\n"},
		{name: "blank entry point", file: "a.yaml", content: "entryPoints: ['  ']\n"},
		{name: "unknown extension", file: "a.toml", content: "entryPoints = []\n"},
		{name: "stats string", file: "a.json", content: `{"entryPoints": ["a.ts"], "stats": "verbose"}`},
		{name: "socket and port", file: "a.yaml", content: "entryPoints: [a.ts]\ndevServer: {socket: /tmp/s, port: 80}\n"},
		{name: "port range", file: "a.yaml", content: "entryPoints: [a.ts]\ndevServer: {port: 70000}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.file, tt.content)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bundler"+ext)
			in := &compiler.Config{EntryPoints: []string{"src/main.ts"}, Minify: true, Stats: compiler.StatsEnabled(false)}
			if err := Save(in, path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			out, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !out.Minify || out.EntryPoints[0] != "src/main.ts" || out.Stats.StringOptions().Preset != compiler.PresetNone {
				t.Fatalf("unexpected round trip %+v", out)
			}
		})
	}
}

func TestResolverPrecedence(t *testing.T) {
	target := &workspace.Target{
		Builder: "@forge/bundler:build",
		Options: map[string]any{"bundlerConfig": "bundler.yaml", "watch": false, "outputPath": "dist"},
		Configurations: map[string]map[string]any{
			"production":  {"statsJson": true, "outputPath": "dist/prod"},
			"development": {"watch": true},
		},
		DefaultConfiguration: "production",
	}
	defaults := map[string]any{"statsJson": false, "verbose": false}

	tests := []struct {
		name           string
		configurations []string
		overrides      map[string]any
		want           map[string]any
	}{
		{
			name: "default configuration",
			want: map[string]any{"bundlerConfig": "bundler.yaml", "watch": false, "outputPath": "dist/prod", "statsJson": true, "verbose": false},
		},
		{
			name:           "explicit configurations in order",
			configurations: []string{"production", "development"},
			want:           map[string]any{"bundlerConfig": "bundler.yaml", "watch": true, "outputPath": "dist/prod", "statsJson": true, "verbose": false},
		},
		{
			name:      "overrides win and nil unsets",
			overrides: map[string]any{"outputPath": "out", "verbose": nil},
			want:      map[string]any{"bundlerConfig": "bundler.yaml", "watch": false, "outputPath": "out", "statsJson": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewResolver(target, defaults).Resolve(tt.configurations, tt.overrides)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}

	if _, err := NewResolver(target, nil).Resolve([]string{"staging"}, nil); err == nil {
		t.Fatal("unknown configuration should fail")
	}
	if target.Options["outputPath"] != "dist" {
		t.Fatal("target options must not be mutated")
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		Watch bool   `json:"watch"`
		Port  int    `json:"port"`
		Path  string `json:"path"`
	}
	if err := Decode(map[string]any{"watch": true, "port": float64(4200), "path": "x"}, &out); err != nil {
		t.Fatal(err)
	}
	if !out.Watch || out.Port != 4200 || out.Path != "x" {
		t.Fatalf("got %+v", out)
	}
	if err := Decode(map[string]any{"port": "nope"}, &out); err == nil {
		t.Fatal("type mismatch should fail")
	}
}
