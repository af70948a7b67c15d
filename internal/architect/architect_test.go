package architect

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dosanma1/forge-bundler/internal/metrics"
	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

const echoSchema = `{
  "type": "object",
  "required": ["entry"],
  "properties": {
    "entry": {"type": "string"},
    "count": {"type": "integer", "default": 2},
    "watch": {"type": "boolean", "default": false}
  },
  "additionalProperties": false
}`

// echoBuilder emits count outputs carrying its options, then completes
// unless watch is set.
type echoBuilder struct {
	gotCtx    *Context
	gotOpts   Options
	teardowns atomic.Int32
}

func (b *echoBuilder) Name() string   { return "@test/echo:run" }
func (b *echoBuilder) Schema() []byte { return []byte(echoSchema) }

func (b *echoBuilder) Run(ctx *Context, opts Options) *stream.Observable[Output] {
	b.gotCtx, b.gotOpts = ctx, opts
	return stream.New(func(e *stream.Emitter[Output]) stream.Teardown {
		go func() {
			var n int
			switch c := opts["count"].(type) {
			case float64:
				n = int(c)
			case int:
				n = c
			}
			for i := 0; i < n; i++ {
				if !e.Next(Output{Success: i%2 == 0, Info: map[string]any{"i": i}}) {
					return
				}
			}
			if opts["watch"] != true {
				e.Complete()
			}
		}()
		return func() { b.teardowns.Add(1) }
	})
}

type failingBuilder struct{}

func (failingBuilder) Name() string   { return "@test/fail:run" }
func (failingBuilder) Schema() []byte { return nil }
func (failingBuilder) Run(*Context, Options) *stream.Observable[Output] {
	return stream.Fail[Output](errors.New("compiler exploded"))
}

// timedBuilder reports builds with known durations.
type timedBuilder struct{ took []time.Duration }

func (timedBuilder) Name() string   { return "@test/timed:run" }
func (timedBuilder) Schema() []byte { return nil }
func (b timedBuilder) Run(*Context, Options) *stream.Observable[Output] {
	return stream.New(func(e *stream.Emitter[Output]) stream.Teardown {
		go func() {
			for _, d := range b.took {
				if !e.Next(Output{Success: true, Duration: d}) {
					return
				}
			}
			e.Complete()
		}()
		return nil
	})
}

func newWorkspace() *workspace.Config {
	ws := workspace.NewConfig("demo")
	ws.Projects["web"] = workspace.Project{
		Name:       "web",
		Root:       "apps/web",
		SourceRoot: "apps/web/src",
		Targets: map[string]workspace.Target{
			"echo": {
				Builder:        "@test/echo:run",
				Options:        map[string]any{"entry": "main.ts"},
				Configurations: map[string]map[string]any{"many": {"count": 5}},
			},
			"fail":    {Builder: "@test/fail:run"},
			"timed":   {Builder: "@test/timed:run"},
			"missing": {Builder: "@test/none:run"},
			"bad":     {Builder: "@test/echo:run", Options: map[string]any{"count": "lots"}},
		},
	}
	return ws
}

func newArchitect(t *testing.T, opts ...Option) (*Architect, *echoBuilder) {
	t.Helper()
	reg := NewRegistry()
	echo := &echoBuilder{}
	if err := reg.Register(echo); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(failingBuilder{}); err != nil {
		t.Fatal(err)
	}
	return New("/work", newWorkspace(), reg, opts...), echo
}

func collect(t *testing.T, s *stream.Subscription[Output]) ([]Output, error) {
	t.Helper()
	done := make(chan struct{})
	var (
		outs []Output
		err  error
	)
	go func() {
		outs, err = stream.Collect(s)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not finish")
	}
	return outs, err
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(failingBuilder{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(failingBuilder{}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if err := reg.Register(&echoBuilder{}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get("@test/none:run"); !errors.Is(err, ErrBuilderNotFound) {
		t.Fatalf("got %v, want ErrBuilderNotFound", err)
	}
	names := reg.List()
	if len(names) != 2 || names[0] != "@test/echo:run" {
		t.Fatalf("List() = %v", names)
	}
}

func TestScheduleAppliesDefaultsAndConfiguration(t *testing.T) {
	a, echo := newArchitect(t)

	spec := workspace.TargetSpec{Project: "web", Target: "echo", Configuration: "many"}
	s, err := a.Schedule(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	outs, err := collect(t, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 5 || !outs[0].Success || outs[1].Success {
		t.Fatalf("unexpected outputs %+v", outs)
	}
	if echo.gotOpts["entry"] != "main.ts" || echo.gotOpts["watch"] != false {
		t.Fatalf("unexpected options %v", echo.gotOpts)
	}
	if echo.gotCtx.ProjectRoot != filepath.Join("/work", "apps/web") || echo.gotCtx.Resolve("a.ts") != filepath.Join("/work", "apps/web", "a.ts") {
		t.Fatalf("unexpected context %+v", echo.gotCtx)
	}
	if echo.gotCtx.SourceRoot != filepath.Join("/work", "apps/web/src") {
		t.Fatalf("unexpected source root %q", echo.gotCtx.SourceRoot)
	}
	if echo.teardowns.Load() != 1 {
		t.Fatalf("builder teardown ran %d times", echo.teardowns.Load())
	}
}

func TestScheduleOverridesWin(t *testing.T) {
	a, echo := newArchitect(t)
	s, err := a.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: "echo"}, map[string]any{"count": 1})
	if err != nil {
		t.Fatal(err)
	}
	outs, _ := collect(t, s)
	if len(outs) != 1 {
		t.Fatalf("override ignored: %d outputs, options %v", len(outs), echo.gotOpts)
	}
}

func TestScheduleErrors(t *testing.T) {
	a, _ := newArchitect(t)

	tests := []struct {
		name   string
		spec   workspace.TargetSpec
		target error
	}{
		{name: "unknown project", spec: workspace.TargetSpec{Project: "api", Target: "echo"}, target: ErrTargetNotFound},
		{name: "unknown target", spec: workspace.TargetSpec{Project: "web", Target: "deploy"}, target: ErrTargetNotFound},
		{name: "unknown builder", spec: workspace.TargetSpec{Project: "web", Target: "missing"}, target: ErrBuilderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Schedule(context.Background(), tt.spec, nil)
			if !errors.Is(err, tt.target) || !IsUsageError(err) {
				t.Fatalf("got %v, want %v", err, tt.target)
			}
		})
	}

	_, err := a.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: "bad"}, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want a ValidationError", err)
	}
	if len(verr.Errors) != 2 {
		t.Fatalf("expected the missing entry and the wrong count type, got %+v", verr.Errors)
	}
}

func TestScheduleRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, _ := newArchitect(t, WithRecorder(metrics.NewRecorder(reg)))

	s, err := a.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: "echo"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := collect(t, s); err != nil {
		t.Fatal(err)
	}

	s, err = a.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: "fail"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := collect(t, s); err == nil || err.Error() != "compiler exploded" {
		t.Fatalf("builder error should pass through, got %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]float64{}
	var sessions float64 = -1
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "forge_builds_total":
				labels := m.GetLabel()
				counts[labels[0].GetValue()+"/"+labels[1].GetValue()] = m.GetCounter().GetValue()
			case "forge_active_sessions":
				sessions = m.GetGauge().GetValue()
			}
		}
	}
	if counts["@test/echo:run/success"] != 1 || counts["@test/echo:run/failure"] != 1 || counts["@test/fail:run/error"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if sessions != 0 {
		t.Fatalf("active sessions = %v, want 0", sessions)
	}
}

func TestScheduleRecordsEachBuildDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, _ := newArchitect(t, WithRecorder(metrics.NewRecorder(reg)))
	if err := a.registry.Register(timedBuilder{took: []time.Duration{3 * time.Second, 2 * time.Second}}); err != nil {
		t.Fatal(err)
	}

	s, err := a.Schedule(context.Background(), workspace.TargetSpec{Project: "web", Target: "timed"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := collect(t, s); err != nil {
		t.Fatal(err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "forge_build_duration_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 2 || h.GetSampleSum() != 5 {
			t.Fatalf("got %d samples summing to %v, want 2 summing to 5", h.GetSampleCount(), h.GetSampleSum())
		}
		return
	}
	t.Fatal("no duration histogram")
}

func TestCancelStopsWatchingBuilder(t *testing.T) {
	a, echo := newArchitect(t)
	ctx, cancel := context.WithCancel(context.Background())

	s, err := a.Schedule(ctx, workspace.TargetSpec{Project: "web", Target: "echo"}, map[string]any{"watch": true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-s.Results():
		case <-time.After(2 * time.Second):
			t.Fatal("no output")
		}
	}
	cancel()
	if _, err := collect(t, s); err != nil {
		t.Fatalf("cancellation should not be an error: %v", err)
	}
	if echo.teardowns.Load() != 1 {
		t.Fatalf("builder teardown ran %d times", echo.teardowns.Load())
	}
}
