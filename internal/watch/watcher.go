// Package watch reports debounced file system changes below a set of
// directories.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType is the kind of change a file went through.
type EventType int

const (
	Created EventType = iota + 1
	Modified
	Deleted
	Renamed
)

func (t EventType) String() string {
	switch t {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is a single file change.
type Event struct {
	Path string
	Type EventType
}

// Batch groups the changes that happened within one debounce window. Paths
// appear once, with their latest change.
type Batch struct {
	Events []Event
	At     time.Time
}

// Paths lists the changed files in lexical order.
func (b Batch) Paths() []string {
	paths := make([]string, 0, len(b.Events))
	for _, e := range b.Events {
		paths = append(paths, e.Path)
	}
	return paths
}

// Config controls what a Watcher observes.
type Config struct {
	// Roots are the directories watched recursively.
	Roots []string

	// Patterns restrict events to matching file names. Empty matches all.
	Patterns []string

	// IgnorePatterns are matched against every path component
	// (e.g. "node_modules", ".git").
	IgnorePatterns []string

	// IgnorePaths are directories whose contents are never reported, such
	// as the build output.
	IgnorePaths []string

	// Debounce is the quiet period after the last change before a batch is
	// delivered.
	Debounce time.Duration
}

// DefaultIgnorePatterns are skipped unless a Config says otherwise.
var DefaultIgnorePatterns = []string{".git", "node_modules", ".idea", ".vscode", ".angular", ".cache"}

// Watcher delivers batches of changes below its roots.
type Watcher struct {
	cfg     Config
	fs      *fsnotify.Watcher
	batches chan Batch
	errors  chan error
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	running bool
	closed  bool

	pendingMu sync.Mutex
	pending   map[string]Event
	timer     *time.Timer
}

// New creates a watcher. Nothing is observed until Start.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("watch: no directories to watch")
	}
	if cfg.IgnorePatterns == nil {
		cfg.IgnorePatterns = DefaultIgnorePatterns
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	cfg.Roots = absPaths(cfg.Roots)
	cfg.IgnorePaths = absPaths(cfg.IgnorePaths)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		fs:      fsw,
		batches: make(chan Batch, 16),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		pending: make(map[string]Event),
	}, nil
}

// Start registers the roots and begins delivering batches.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("watch: watcher stopped")
	}
	if w.running {
		return nil
	}

	for _, root := range w.cfg.Roots {
		if err := w.addRecursive(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	w.running = true
	go w.loop()
	return nil
}

// Stop ends watching. Pending changes are discarded. Stop is idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	running := w.running
	close(w.done)
	w.mu.Unlock()

	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()

	err := w.fs.Close()
	if running {
		<-w.stopped
	}
	return err
}

// Batches returns the channel of debounced changes.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	var typ EventType
	switch {
	case event.Has(fsnotify.Create):
		typ = Created
		// New directories are not covered by the recursive add done at
		// start.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				select {
				case w.errors <- err:
				default:
				}
			}
			return
		}
	case event.Has(fsnotify.Write):
		typ = Modified
	case event.Has(fsnotify.Remove):
		typ = Deleted
	case event.Has(fsnotify.Rename):
		typ = Renamed
	default:
		return
	}

	if !w.matches(event.Name) {
		return
	}
	w.debounce(Event{Path: event.Name, Type: typ})
}

// debounce collects events until no change has been seen for the debounce
// period, then delivers them as one batch.
func (w *Watcher) debounce(event Event) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[event.Path] = event
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	events := make([]Event, 0, len(w.pending))
	for _, e := range w.pending {
		events = append(events, e)
	}
	w.pending = make(map[string]Event)
	w.pendingMu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case w.batches <- Batch{Events: events, At: time.Now()}:
	case <-w.done:
	}
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func (w *Watcher) matches(path string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range w.cfg.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.cfg.IgnorePaths {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		for _, pattern := range w.cfg.IgnorePatterns {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
