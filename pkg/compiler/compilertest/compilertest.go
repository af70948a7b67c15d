// Package compilertest provides an in-memory compiler for tests of code that
// drives the compiler contract.
package compilertest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// Log records calls in the order they happen. A single Log may be shared
// between several fakes to assert cross-object ordering.
type Log struct {
	mu      sync.Mutex
	entries []string
}

func (l *Log) Add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *Log) Count(entry string) int {
	n := 0
	for _, e := range l.Entries() {
		if e == entry {
			n++
		}
	}
	return n
}

// Stats is a fixed build outcome.
type Stats struct {
	Errors   []string
	Warnings []string
	Output   *compiler.Compilation
	// Took is reported through Duration.
	Took time.Duration
}

// Succeeded returns stats without errors for the given output.
func Succeeded(c *compiler.Compilation) *Stats {
	return &Stats{Output: c}
}

// Failed returns stats reporting the given errors.
func Failed(c *compiler.Compilation, errs ...string) *Stats {
	return &Stats{Output: c, Errors: errs}
}

func (s *Stats) HasErrors() bool   { return len(s.Errors) > 0 }
func (s *Stats) HasWarnings() bool { return len(s.Warnings) > 0 }

func (s *Stats) Duration() time.Duration { return s.Took }

func (s *Stats) String(opts *compiler.StatsOptions) string {
	var b strings.Builder
	if opts.ShowErrors() {
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "ERROR: %s\n", e)
		}
	}
	if opts.ShowWarnings() {
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "WARNING: %s\n", w)
		}
	}
	if opts.ShowAssets() && s.Output != nil {
		for _, a := range s.Output.Assets {
			fmt.Fprintf(&b, "asset %s\n", a)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (s *Stats) JSON(opts *compiler.StatsOptions) *compiler.StatsCompilation {
	out := &compiler.StatsCompilation{}
	if s.Output != nil {
		out.OutputPath = s.Output.OutputPath
	}
	if opts == nil || opts.ShowErrors() {
		for _, e := range s.Errors {
			out.Errors = append(out.Errors, compiler.StatsMessage{Message: e})
		}
	}
	if opts == nil || opts.ShowWarnings() {
		for _, w := range s.Warnings {
			out.Warnings = append(out.Warnings, compiler.StatsMessage{Message: w})
		}
	}
	return out
}

func (s *Stats) Compilation() *compiler.Compilation {
	return s.Output
}

// Compiler is a scripted compiler. Builds are reported by calling Emit.
//
// Log entries: "run", "watch", "watching.close", "close".
type Compiler struct {
	Log *Log

	// RunErr and WatchErr are returned synchronously by Run and Watch.
	RunErr   error
	WatchErr error
	// CloseErr is passed to Close callbacks.
	CloseErr error

	hooks   *compiler.Hooks
	started chan struct{}
	once    sync.Once

	mu        sync.Mutex
	cb        compiler.Callback
	watchOpts compiler.WatchOptions
	closed    bool
}

// New returns a Compiler recording into log. A nil log gets a fresh one.
func New(log *Log) *Compiler {
	if log == nil {
		log = &Log{}
	}
	return &Compiler{
		Log:     log,
		hooks:   compiler.NewHooks(),
		started: make(chan struct{}),
	}
}

func (c *Compiler) Hooks() *compiler.Hooks {
	return c.hooks
}

func (c *Compiler) Run(cb compiler.Callback) error {
	c.Log.Add("run")
	if c.RunErr != nil {
		return c.RunErr
	}
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
	c.once.Do(func() { close(c.started) })
	return nil
}

func (c *Compiler) Watch(opts compiler.WatchOptions, cb compiler.Callback) (compiler.Watching, error) {
	c.Log.Add("watch")
	if c.WatchErr != nil {
		return nil, c.WatchErr
	}
	c.mu.Lock()
	c.cb = cb
	c.watchOpts = opts
	c.mu.Unlock()
	c.once.Do(func() { close(c.started) })
	return &Watching{log: c.Log, owner: c}, nil
}

func (c *Compiler) Close(cb func(error)) {
	c.Log.Add("close")
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	go cb(c.CloseErr)
}

// Started is closed once Run or Watch has been called successfully.
func (c *Compiler) Started() <-chan struct{} {
	return c.started
}

// Closed reports whether Close has been called.
func (c *Compiler) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WatchOptions returns the options of the last Watch call.
func (c *Compiler) WatchOptions() compiler.WatchOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchOpts
}

// Emit reports a finished build: the done hook fires when stats is non-nil,
// then the Run or Watch callback, if any, is invoked.
func (c *Compiler) Emit(err error, stats compiler.Stats) {
	if stats != nil {
		c.hooks.Done.Call(stats)
	}
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(err, stats)
	}
}

func (c *Compiler) stopWatching() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

// Watching is the handle returned by Compiler.Watch.
type Watching struct {
	log   *Log
	owner *Compiler
}

func (w *Watching) Close(cb func()) {
	w.log.Add("watching.close")
	w.owner.stopWatching()
	go cb()
}
