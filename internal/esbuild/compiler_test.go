package esbuild

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

type buildOutcome struct {
	err   error
	stats compiler.Stats
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newProject(t *testing.T, main string) *compiler.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.ts"), main)
	writeFile(t, filepath.Join(dir, "src", "greet.ts"), "export const greet = (n: string) => `hello ${n}`;\n")
	return &compiler.Config{
		Name:        "app",
		Context:     dir,
		EntryPoints: []string{"src/main.ts"},
		OutputPath:  "dist",
	}
}

func closeCompiler(t *testing.T, c *Compiler) {
	t.Helper()
	done := make(chan error, 1)
	c.Close(func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not finish")
	}
}

func awaitBuild(t *testing.T, ch <-chan buildOutcome) buildOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("build did not finish")
	}
	return buildOutcome{}
}

func TestRun(t *testing.T) {
	cfg := newProject(t, "import { greet } from './greet';\nconsole.log(greet('forge'));\n")
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var hooked compiler.Stats
	c.Hooks().Done.Tap("test", func(s compiler.Stats) { hooked = s })

	results := make(chan buildOutcome, 1)
	if err := c.Run(func(err error, stats compiler.Stats) { results <- buildOutcome{err, stats} }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := awaitBuild(t, results)
	closeCompiler(t, c)

	if got.err != nil {
		t.Fatalf("build error: %v", got.err)
	}
	if got.stats.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", got.stats.String(nil))
	}
	if hooked != got.stats {
		t.Fatal("done hook did not receive the build stats")
	}

	comp := got.stats.Compilation()
	wantOut := filepath.Join(cfg.Context, "dist")
	if comp.OutputPath != wantOut {
		t.Fatalf("OutputPath = %q, want %q", comp.OutputPath, wantOut)
	}
	if len(comp.Chunks) != 1 || comp.Chunks[0].Name != "main" || comp.Chunks[0].Files[0] != "main.js" || !comp.Chunks[0].Initial {
		t.Fatalf("unexpected chunks %+v", comp.Chunks)
	}
	if _, err := os.Stat(filepath.Join(wantOut, "main.js")); err != nil {
		t.Fatalf("output not written: %v", err)
	}

	summary := got.stats.String(&compiler.StatsOptions{Preset: compiler.PresetNormal})
	if !strings.Contains(summary, "main.js") || !strings.Contains(summary, "compiled successfully") {
		t.Fatalf("unexpected summary %q", summary)
	}
	if none := got.stats.String(&compiler.StatsOptions{Preset: compiler.PresetNone}); none != "" {
		t.Fatalf("preset none should render nothing, got %q", none)
	}

	js := got.stats.JSON(nil)
	if len(js.Assets) == 0 || len(js.Modules) == 0 || js.Hash == "" {
		t.Fatalf("incomplete JSON stats %+v", js)
	}
}

func TestRunReportsSourceErrorsAsStats(t *testing.T) {
	cfg := newProject(t, "import { missing } from './nowhere';\nconsole.log(missing;\n")
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeCompiler(t, c)

	results := make(chan buildOutcome, 1)
	if err := c.Run(func(err error, stats compiler.Stats) { results <- buildOutcome{err, stats} }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := awaitBuild(t, results)

	if got.err != nil {
		t.Fatalf("source errors must not fail the callback: %v", got.err)
	}
	if !got.stats.HasErrors() {
		t.Fatal("expected reported errors")
	}
	text := got.stats.String(&compiler.StatsOptions{Preset: compiler.PresetErrorsOnly})
	if !strings.Contains(text, "main.ts") {
		t.Fatalf("error summary should point at the source, got %q", text)
	}
	if js := got.stats.JSON(nil); len(js.Errors) == 0 || js.Errors[0].ModuleName == "" {
		t.Fatalf("expected located errors, got %+v", js.Errors)
	}
}

func TestWatchRebuildsOnChange(t *testing.T) {
	cfg := newProject(t, "console.log('v1');\n")
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results := make(chan buildOutcome, 4)
	w, err := c.Watch(compiler.WatchOptions{AggregateTimeout: 20}, func(err error, stats compiler.Stats) {
		results <- buildOutcome{err, stats}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	first := awaitBuild(t, results)
	if first.err != nil || first.stats.HasErrors() {
		t.Fatalf("initial build failed: %v", first.err)
	}

	if err := c.Run(func(error, compiler.Stats) {}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Run during watch: got %v, want ErrBusy", err)
	}

	writeFile(t, filepath.Join(cfg.Context, "src", "main.ts"), "console.log('v2');\n")
	second := awaitBuild(t, results)
	if second.err != nil || second.stats.HasErrors() {
		t.Fatalf("rebuild failed: %v", second.err)
	}

	out, err := os.ReadFile(filepath.Join(cfg.Context, "dist", "main.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "v2") {
		t.Fatalf("output not rebuilt: %s", out)
	}

	stopped := make(chan struct{})
	w.Close(func() { close(stopped) })
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("watching did not close")
	}
	closeCompiler(t, c)

	if err := c.Run(func(error, compiler.Stats) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Run after close: got %v, want ErrClosed", err)
	}
}

func TestCloseWhileWatchingIsRejected(t *testing.T) {
	cfg := newProject(t, "console.log(1);\n")
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	w, err := c.Watch(compiler.WatchOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	c.Close(func(err error) { errCh <- err })
	if err := <-errCh; !errors.Is(err, ErrBusy) {
		t.Fatalf("got %v, want ErrBusy", err)
	}

	done := make(chan struct{})
	w.Close(func() { close(done) })
	<-done
	closeCompiler(t, c)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  compiler.Config
	}{
		{name: "no entry points", cfg: compiler.Config{}},
		{name: "unknown target", cfg: compiler.Config{EntryPoints: []string{"a.ts"}, Target: "es1999"}},
		{name: "unknown format", cfg: compiler.Config{EntryPoints: []string{"a.ts"}, Format: "amd"}},
		{name: "unknown loader", cfg: compiler.Config{EntryPoints: []string{"a.ts"}, Loader: map[string]string{".x": "magic"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Context = t.TempDir()
			if _, err := New(&tt.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestMetafileCompilation(t *testing.T) {
	meta, err := parseMetafile(`{
		"inputs": {"src/main.ts": {"bytes": 10}},
		"outputs": {
			"dist/main.js": {"bytes": 100, "entryPoint": "src/main.ts", "cssBundle": "dist/main.css"},
			"dist/main.js.map": {"bytes": 50},
			"dist/main.css": {"bytes": 20},
			"dist/chunk-ABC.js": {"bytes": 30},
			"dist/media/logo-XYZ.png": {"bytes": 40}
		}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	c := meta.compilation("/work", "/work/dist")
	if len(c.Chunks) != 2 {
		t.Fatalf("chunks = %+v", c.Chunks)
	}
	lazy, main := c.Chunks[0], c.Chunks[1]
	if lazy.ID != "chunk-ABC" || lazy.Initial {
		t.Errorf("unexpected lazy chunk %+v", lazy)
	}
	if main.Name != "main" || len(main.Files) != 3 || main.Files[1] != "main.js.map" || main.Files[2] != "main.css" {
		t.Errorf("unexpected entry chunk %+v", main)
	}

	files := compiler.EmittedFiles(c)
	last := files[len(files)-1]
	if last.File != "media/logo-XYZ.png" || !last.Asset {
		t.Errorf("expected the image as trailing asset, got %+v", last)
	}
}
