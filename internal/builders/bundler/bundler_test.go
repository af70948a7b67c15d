package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dosanma1/forge-bundler/internal/architect"
	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/bundler"
	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/compiler/compilertest"
	"github.com/dosanma1/forge-bundler/pkg/devserver"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

const timeout = 2 * time.Second

type harness struct {
	root     string
	outDir   string
	compiler *compilertest.Compiler
	arch     *architect.Architect

	mu     sync.Mutex
	gotCfg *compiler.Config
}

func newHarness(t *testing.T, extra ...bundler.Option) *harness {
	t.Helper()
	root := t.TempDir()
	projectRoot := filepath.Join(root, "apps", "web")
	if err := os.MkdirAll(projectRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(projectRoot, "bundler.yaml"), []byte("entryPoints: [src/main.ts]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		root:     root,
		outDir:   filepath.Join(projectRoot, "dist"),
		compiler: compilertest.New(nil),
	}

	ws := workspace.NewConfig("demo")
	ws.Projects["web"] = workspace.Project{
		Name: "web",
		Root: "apps/web",
		Targets: map[string]workspace.Target{
			"build": {Builder: BuildName, Options: map[string]any{"bundlerConfig": "bundler.yaml"}},
			"serve": {Builder: DevServerName, Options: map[string]any{"bundlerConfig": "bundler.yaml"}},
		},
	}

	factory := bundler.CompilerFactoryFunc(func(_ context.Context, cfg *compiler.Config) (compiler.Compiler, error) {
		h.mu.Lock()
		h.gotCfg = cfg
		h.mu.Unlock()
		return h.compiler, nil
	})
	options := append([]bundler.Option{
		bundler.WithCompilerFactory(factory),
		bundler.WithLogging(func(compiler.Stats, *compiler.Config) {}),
	}, extra...)

	reg := architect.NewRegistry()
	if err := Register(reg, nil, options...); err != nil {
		t.Fatal(err)
	}
	h.arch = architect.New(root, ws, reg)
	return h
}

func (h *harness) schedule(t *testing.T, target string, overrides map[string]any) *stream.Subscription[architect.Output] {
	t.Helper()
	s, err := h.arch.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: target}, overrides)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func (h *harness) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-h.compiler.Started():
	case <-time.After(timeout):
		t.Fatal("compiler never started")
	}
}

func (h *harness) output() *compiler.Compilation {
	return &compiler.Compilation{
		OutputPath: h.outDir,
		Chunks:     []compiler.Chunk{{ID: "main", Name: "main", Files: []string{"main.js"}, Initial: true}},
		Assets:     []string{"main.js"},
	}
}

func next(t *testing.T, s *stream.Subscription[architect.Output]) architect.Output {
	t.Helper()
	select {
	case out, ok := <-s.Results():
		if !ok {
			t.Fatalf("stream ended early: %v", s.Err())
		}
		return out
	case <-time.After(timeout):
		t.Fatal("no output")
	}
	return architect.Output{}
}

func TestBuildWritesStatsJSON(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, "build", map[string]any{"statsJson": true})
	h.waitStarted(t)
	h.compiler.Emit(nil, compilertest.Succeeded(h.output()))

	out := next(t, s)
	if !out.Success || out.Info["outputPath"] != h.outDir {
		t.Fatalf("unexpected output %+v", out)
	}
	files, ok := out.Info["emittedFiles"].([]compiler.EmittedFile)
	if !ok || len(files) != 1 || files[0].File != "main.js" {
		t.Fatalf("unexpected emitted files %#v", out.Info["emittedFiles"])
	}

	statsPath := filepath.Join(h.outDir, StatsFileName)
	if out.Info["statsJson"] != statsPath {
		t.Fatalf("statsJson = %v, want %s", out.Info["statsJson"], statsPath)
	}
	data, err := os.ReadFile(statsPath)
	if err != nil {
		t.Fatal(err)
	}
	var stats compiler.StatsCompilation
	if err := json.Unmarshal(data, &stats); err != nil || stats.OutputPath != h.outDir {
		t.Fatalf("unexpected stats file %s (%v)", data, err)
	}

	if err := s.Wait(); err != nil {
		t.Fatalf("one-shot build should complete cleanly: %v", err)
	}
	if got := h.compiler.Log.Entries(); len(got) != 2 || got[0] != "run" || got[1] != "close" {
		t.Fatalf("compiler calls = %v", got)
	}
}

func TestBuildFailureIsReported(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, "build", nil)
	h.waitStarted(t)
	h.compiler.Emit(nil, compilertest.Failed(h.output(), "Unexpected token"))

	out := next(t, s)
	if out.Success || out.Error != "Unexpected token" {
		t.Fatalf("unexpected output %+v", out)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, StatsFileName)); !os.IsNotExist(err) {
		t.Fatal("stats.json is only written when requested")
	}
}

func TestBuildOverrides(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, "build", map[string]any{"watch": true, "outputPath": "out"})
	h.waitStarted(t)

	h.compiler.Emit(nil, compilertest.Succeeded(h.output()))
	next(t, s)
	h.compiler.Emit(nil, compilertest.Succeeded(h.output()))
	next(t, s)

	if got := h.compiler.Log.Entries(); got[0] != "watch" {
		t.Fatalf("watch override ignored: %v", got)
	}
	h.mu.Lock()
	outputPath := h.gotCfg.OutputPath
	h.mu.Unlock()
	if want := filepath.Join(h.root, "apps", "web", "out"); outputPath != want {
		t.Fatalf("OutputPath = %q, want %q", outputPath, want)
	}

	s.Close()
	if n := h.compiler.Log.Count("close"); n != 1 {
		t.Fatalf("compiler closed %d times", n)
	}
}

func TestBuildConfigErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.arch.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: "build"}, map[string]any{"bundlerConfig": nil})
	var verr *architect.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("missing bundlerConfig should fail validation, got %v", err)
	}

	s := h.schedule(t, "build", map[string]any{"bundlerConfig": "missing.yaml"})
	if _, err := stream.Collect(s); err == nil {
		t.Fatal("a missing bundler config should fail the run")
	}
}

type fakeServer struct {
	addr    devserver.Address
	started chan struct{}
}

func (s *fakeServer) StartCallback(cb func(error)) {
	go func() {
		cb(nil)
		close(s.started)
	}()
}

func (s *fakeServer) StopCallback(cb func()) { go cb() }

func (s *fakeServer) Address() (devserver.Address, bool) { return s.addr, true }

func TestDevServer(t *testing.T) {
	srv := &fakeServer{
		addr:    devserver.SocketAddress{Port: 4200, Address: "127.0.0.1", Family: "IPv4"},
		started: make(chan struct{}),
	}
	var seen compiler.DevServerOptions
	factory := devserver.FactoryFunc(func(o compiler.DevServerOptions, _ compiler.Compiler) (devserver.DevServer, error) {
		seen = o
		return srv, nil
	})

	h := newHarness(t, bundler.WithDevServerFactory(factory))
	s := h.schedule(t, "serve", map[string]any{"proxy": map[string]any{"/api": "http://localhost:8080"}})

	select {
	case <-srv.started:
	case <-time.After(timeout):
		t.Fatal("server never started")
	}
	if seen.Host != "localhost" || seen.Port != 4200 || !seen.LiveReloadEnabled() || seen.Proxy["/api"] != "http://localhost:8080" {
		t.Fatalf("unexpected dev server options %+v", seen)
	}

	h.compiler.Emit(nil, compilertest.Succeeded(h.output()))
	out := next(t, s)
	if !out.Success || out.Info["baseUrl"] != "http://127.0.0.1:4200/" || out.Info["family"] != "IPv4" {
		t.Fatalf("unexpected output %+v", out)
	}

	h.compiler.Emit(nil, compilertest.Failed(h.output(), "broken"))
	if out := next(t, s); out.Success {
		t.Fatal("second build should report the failure")
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   bundler.DevServerResult
		want string
	}{
		{name: "ipv4", in: bundler.DevServerResult{Port: 4200, Address: "127.0.0.1", Family: "IPv4"}, want: "http://127.0.0.1:4200/"},
		{name: "ipv6", in: bundler.DevServerResult{Port: 80, Address: "::1", Family: "IPv6"}, want: "http://[::1]:80/"},
		{name: "unspecified", in: bundler.DevServerResult{Port: 4200, Address: "0.0.0.0", Family: "IPv4"}, want: "http://localhost:4200/"},
		{name: "pipe", in: bundler.DevServerResult{Address: "/tmp/forge.sock"}, want: ""},
		{name: "not started", in: bundler.DevServerResult{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := baseURL(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := architect.NewRegistry()
	if err := Register(reg, nil); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg, nil); err == nil {
		t.Fatal("second registration should fail")
	}
	if names := reg.List(); len(names) != 2 {
		t.Fatalf("registered %v", names)
	}
}
