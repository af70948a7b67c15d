// Package esbuild adapts the esbuild Go API to the compiler contract.
package esbuild

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/dosanma1/forge-bundler/internal/watch"
	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

var (
	// ErrBusy is returned when a call would overlap a running build, an
	// active watch or a close.
	ErrBusy = errors.New("esbuild: compiler is busy")
	// ErrClosed is returned when the compiler has been closed.
	ErrClosed = errors.New("esbuild: compiler is closed")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateWatching
	stateClosed
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger for rebuild and watcher messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// Compiler builds a configuration with an incremental esbuild context.
type Compiler struct {
	cfg    *compiler.Config
	opts   api.BuildOptions
	ctx    api.BuildContext
	hooks  *compiler.Hooks
	logger *slog.Logger

	mu     sync.Mutex
	state  state
	builds sync.WaitGroup
}

var _ compiler.Compiler = (*Compiler)(nil)

// New prepares an esbuild context for cfg. Invalid options are reported
// here rather than on the first build.
func New(cfg *compiler.Config, options ...Option) (*Compiler, error) {
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid bundler configuration: %w", err)
	}

	ctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, fmt.Errorf("failed to create build context: %s", joinMessages(ctxErr.Errors))
	}

	c := &Compiler{
		cfg:    cfg,
		opts:   opts,
		ctx:    ctx,
		hooks:  compiler.NewHooks(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func joinMessages(msgs []api.Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "; ")
}

func (c *Compiler) Hooks() *compiler.Hooks {
	return c.hooks
}

// OutputPath is the absolute output directory.
func (c *Compiler) OutputPath() string {
	return c.opts.Outdir
}

func (c *Compiler) acquire(next state) error {
	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateIdle:
		c.state = next
		return nil
	default:
		return ErrBusy
	}
}

func (c *Compiler) release(from state) {
	c.mu.Lock()
	if c.state == from {
		c.state = stateIdle
	}
	c.mu.Unlock()
}

func (c *Compiler) build() *Stats {
	start := time.Now()
	result := c.ctx.Rebuild()
	return newStats(c.cfg.Name, result, c.opts.AbsWorkingDir, c.opts.Outdir, time.Since(start))
}

func (c *Compiler) Run(cb compiler.Callback) error {
	c.mu.Lock()
	if err := c.acquire(stateRunning); err != nil {
		c.mu.Unlock()
		return err
	}
	c.builds.Add(1)
	c.mu.Unlock()

	go func() {
		stats := c.build()
		c.builds.Done()
		c.release(stateRunning)

		c.hooks.Done.Call(stats)
		cb(nil, stats)
	}()
	return nil
}

func (c *Compiler) Watch(opts compiler.WatchOptions, cb compiler.Callback) (compiler.Watching, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.acquire(stateWatching); err != nil {
		return nil, err
	}

	roots := []string{c.opts.AbsWorkingDir}
	for _, p := range opts.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.opts.AbsWorkingDir, p)
		}
		roots = append(roots, p)
	}

	ignore := append(append([]string(nil), watch.DefaultIgnorePatterns...), opts.Ignored...)
	w, err := watch.New(watch.Config{
		Roots:          roots,
		IgnorePatterns: ignore,
		IgnorePaths:    []string{c.opts.Outdir},
		Debounce:       opts.Debounce(),
	})
	if err == nil {
		err = w.Start()
	}
	if err != nil {
		c.state = stateIdle
		if w != nil {
			w.Stop()
		}
		return nil, fmt.Errorf("failed to watch sources: %w", err)
	}

	wt := &watching{
		c:       c,
		watcher: w,
		cb:      cb,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go wt.loop()
	return wt, nil
}

// Close disposes the esbuild context. A build in progress is cancelled
// first. Closing while a watch is active fails with ErrBusy.
func (c *Compiler) Close(cb func(error)) {
	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		go cb(nil)
		return
	case stateWatching:
		c.mu.Unlock()
		go cb(ErrBusy)
		return
	}
	c.state = stateClosed
	c.mu.Unlock()

	go func() {
		c.ctx.Cancel()
		c.builds.Wait()
		c.ctx.Dispose()
		cb(nil)
	}()
}

type watching struct {
	c       *Compiler
	watcher *watch.Watcher
	cb      compiler.Callback

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (w *watching) loop() {
	defer close(w.done)

	w.rebuild()
	for {
		select {
		case <-w.stop:
			return
		case batch, ok := <-w.watcher.Batches():
			if !ok {
				return
			}
			w.c.logger.Debug("sources changed, rebuilding", "files", len(batch.Events))
			w.rebuild()
		case err := <-w.watcher.Errors():
			w.c.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *watching) rebuild() {
	select {
	case <-w.stop:
		return
	default:
	}

	w.c.builds.Add(1)
	stats := w.c.build()
	w.c.builds.Done()

	w.c.hooks.Done.Call(stats)
	if w.cb != nil {
		w.cb(nil, stats)
	}
}

// Close stops watching and cancels a rebuild in progress.
func (w *watching) Close(cb func()) {
	go func() {
		w.once.Do(func() {
			close(w.stop)
			if err := w.watcher.Stop(); err != nil {
				w.c.logger.Warn("failed to stop file watcher", "error", err)
			}
			w.c.ctx.Cancel()
			<-w.done
			w.c.release(stateWatching)
		})
		cb()
	}()
}
