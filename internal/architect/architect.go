package architect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dosanma1/forge-bundler/internal/config"
	"github.com/dosanma1/forge-bundler/internal/logging"
	"github.com/dosanma1/forge-bundler/internal/metrics"
	"github.com/dosanma1/forge-bundler/internal/workspace"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

const tracerName = "github.com/dosanma1/forge-bundler/internal/architect"

// Option configures an Architect.
type Option func(*Architect)

// WithLogger sets the logger handed to builders.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Architect) { a.logger = logger }
}

// WithRecorder records build outcomes and active sessions.
func WithRecorder(r *metrics.Recorder) Option {
	return func(a *Architect) { a.recorder = r }
}

// WithTracerProvider sets where spans go. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Architect) { a.tracer = tp.Tracer(tracerName) }
}

// Architect resolves workspace targets and runs them.
type Architect struct {
	root      string
	workspace *workspace.Config
	registry  *Registry
	logger    *slog.Logger
	recorder  *metrics.Recorder
	tracer    trace.Tracer
}

// New creates an Architect for the workspace rooted at root.
func New(root string, ws *workspace.Config, registry *Registry, opts ...Option) *Architect {
	a := &Architect{
		root:      root,
		workspace: ws,
		registry:  registry,
		logger:    logging.Discard(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Workspace returns the workspace configuration.
func (a *Architect) Workspace() *workspace.Config {
	return a.workspace
}

// Options resolves and validates the options a target would run with.
func (a *Architect) Options(spec workspace.TargetSpec, overrides map[string]any) (Builder, Options, error) {
	_, target, err := a.workspace.Target(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTargetNotFound, err)
	}
	builder, err := a.registry.Get(target.Builder)
	if err != nil {
		return nil, nil, err
	}

	defaults, err := schemaDefaults(builder.Schema())
	if err != nil {
		return nil, nil, fmt.Errorf("builder %s: %w", builder.Name(), err)
	}
	resolved, err := config.NewResolver(target, defaults).Resolve(spec.Configurations(), overrides)
	if err != nil {
		return nil, nil, err
	}
	if err := validateOptions(builder.Name(), builder.Schema(), resolved); err != nil {
		return nil, nil, err
	}
	return builder, Options(resolved), nil
}

// Schedule resolves a target and subscribes to its builder. Cancelling ctx
// or closing the subscription stops the run.
func (a *Architect) Schedule(ctx context.Context, spec workspace.TargetSpec, overrides map[string]any) (*stream.Subscription[Output], error) {
	builder, opts, err := a.Options(spec, overrides)
	if err != nil {
		return nil, err
	}

	project := a.workspace.Projects[spec.Project]
	bctx := &Context{
		WorkspaceRoot: a.root,
		ProjectRoot:   filepath.Join(a.root, project.Root),
		Target:        spec,
		Logger:        logging.ForTarget(a.logger, spec.Project, spec.Target),
	}
	if project.SourceRoot != "" {
		bctx.SourceRoot = filepath.Join(a.root, project.SourceRoot)
	}

	return a.instrument(spec, builder.Name(), builder.Run(bctx, opts)).Subscribe(ctx), nil
}

// instrument wraps a builder run in a span and records every output.
func (a *Architect) instrument(spec workspace.TargetSpec, builder string, src *stream.Observable[Output]) *stream.Observable[Output] {
	return stream.New(func(e *stream.Emitter[Output]) stream.Teardown {
		spanCtx, span := a.tracer.Start(context.Background(), "forge.run "+spec.String(),
			trace.WithAttributes(
				attribute.String("forge.project", spec.Project),
				attribute.String("forge.target", spec.Target),
				attribute.String("forge.configuration", spec.Configuration),
				attribute.String("forge.builder", builder),
			),
		)
		var sessionDone func()
		if a.recorder != nil {
			sessionDone = a.recorder.SessionStarted()
		}

		ctx, cancel := context.WithCancel(spanCtx)
		sub := src.Subscribe(ctx)
		done := make(chan struct{})
		// last marks the start of the build the next output reports.
		last := time.Now()

		go func() {
			defer close(done)
			defer sub.Close()

			for {
				select {
				case out, ok := <-sub.Results():
					if !ok {
						if err := sub.Err(); err != nil {
							a.record(builder, metrics.OutcomeError, time.Since(last))
							span.RecordError(err)
							span.SetStatus(codes.Error, err.Error())
							e.Error(err)
							return
						}
						span.SetStatus(codes.Ok, "")
						e.Complete()
						return
					}
					outcome := metrics.OutcomeSuccess
					if !out.Success {
						outcome = metrics.OutcomeFailure
					}
					took := out.Duration
					if took <= 0 {
						took = time.Since(last)
					}
					a.record(builder, outcome, took)
					last = time.Now()
					span.AddEvent("build", trace.WithAttributes(attribute.Bool("forge.success", out.Success)))
					if !e.Next(out) {
						return
					}
				case <-e.Done():
					return
				}
			}
		}()

		return func() {
			cancel()
			<-done
			span.End()
			if sessionDone != nil {
				sessionDone()
			}
		}
	})
}

func (a *Architect) record(builder, outcome string, took time.Duration) {
	if a.recorder != nil {
		a.recorder.Build(builder, outcome, took)
	}
}

// IsUsageError reports whether err comes from resolving a target rather
// than from running it.
func IsUsageError(err error) bool {
	var verr *ValidationError
	return errors.Is(err, ErrTargetNotFound) || errors.Is(err, ErrBuilderNotFound) || errors.As(err, &verr)
}
