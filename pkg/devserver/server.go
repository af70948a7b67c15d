package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// MetricsPath serves the Prometheus metrics when a gatherer is configured.
const MetricsPath = "/_forge/metrics"

const shutdownTimeout = 5 * time.Second

// ErrStopped is reported when a server is started after it was stopped.
var ErrStopped = errors.New("dev server stopped")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and rebuild messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics exposes g under MetricsPath.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.metrics = g }
}

// WithWatchOptions sets the options the server watches the compiler with.
func WithWatchOptions(opts compiler.WatchOptions) Option {
	return func(s *Server) { s.watchOptions = opts }
}

// Server serves the latest build output of a compiler, rebuilding on change
// and telling connected browsers to reload.
type Server struct {
	opts         compiler.DevServerOptions
	compiler     compiler.Compiler
	logger       *slog.Logger
	metrics      prometheus.Gatherer
	watchOptions compiler.WatchOptions
	reload       *reloadHub

	// lifecycle serializes start and stop.
	lifecycle sync.Mutex
	started   bool
	stopped   bool
	listener  net.Listener
	http      *http.Server
	watching  compiler.Watching
	untap     func()

	mu         sync.RWMutex
	outputPath string
}

// New creates a server for c. It does nothing until StartCallback is called.
func New(opts compiler.DevServerOptions, c compiler.Compiler, options ...Option) *Server {
	s := &Server{
		opts:     opts,
		compiler: c,
		logger:   slog.New(slog.DiscardHandler),
		reload:   newReloadHub(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Server) StartCallback(cb func(error)) {
	go func() { cb(s.start()) }()
}

func (s *Server) StopCallback(cb func()) {
	go func() {
		s.stop()
		cb()
	}()
}

func (s *Server) Address() (Address, bool) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener == nil {
		return nil, false
	}
	return AddressFromNet(s.listener.Addr())
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	if s.opts.Compress {
		r.Use(middleware.Compress(5))
	}

	if s.opts.LiveReloadEnabled() {
		r.Handle(ReloadPath, s.reload)
	}
	if s.metrics != nil {
		r.Handle(MetricsPath, promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	prefixes := make([]string, 0, len(s.opts.Proxy))
	for prefix := range s.opts.Proxy {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		target, err := url.Parse(s.opts.Proxy[prefix])
		if err != nil {
			s.logger.Warn("ignoring invalid proxy target", "prefix", prefix, "target", s.opts.Proxy[prefix], "error", err)
			continue
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		prefix = "/" + strings.Trim(prefix, "/")
		r.Handle(prefix, proxy)
		r.Handle(prefix+"/*", proxy)
	}

	r.Get("/*", s.serveOutput)
	return r
}

func (s *Server) start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}

	s.untap = s.compiler.Hooks().Done.Tap("forge-dev-server", s.onDone)
	s.listener = ln
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev server stopped unexpectedly", "error", err)
		}
	}()

	watching, err := s.compiler.Watch(s.watchOptions, s.onBuild)
	if err != nil {
		s.shutdown()
		return fmt.Errorf("failed to start watching: %w", err)
	}
	s.watching = watching
	s.started = true

	if addr, ok := AddressFromNet(ln.Addr()); ok {
		s.logger.Info("dev server listening", "address", addr.String())
	}
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	if s.opts.Socket != "" {
		// A stale socket file from an earlier run blocks the bind.
		_ = os.Remove(s.opts.Socket)
		ln, err := net.Listen("unix", s.opts.Socket)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", s.opts.Socket, err)
		}
		return ln, nil
	}

	host := s.opts.Host
	if host == "" {
		host = "localhost"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	if s.watching != nil {
		done := make(chan struct{})
		s.watching.Close(func() { close(done) })
		<-done
		s.watching = nil
	}
	s.shutdown()
}

// shutdown releases the listener side. The caller holds lifecycle.
func (s *Server) shutdown() {
	if s.untap != nil {
		s.untap()
		s.untap = nil
	}
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Warn("dev server shutdown incomplete", "error", err)
		}
		cancel()
	}
	s.reload.close()
	if s.opts.Socket != "" {
		_ = os.Remove(s.opts.Socket)
	}
}

func (s *Server) onDone(stats compiler.Stats) {
	if stats == nil {
		return
	}
	if c := stats.Compilation(); c != nil && c.OutputPath != "" {
		s.mu.Lock()
		s.outputPath = c.OutputPath
		s.mu.Unlock()
	}

	if !s.opts.LiveReloadEnabled() {
		return
	}
	if stats.HasErrors() {
		s.reload.buildFailed(stats.String(&compiler.StatsOptions{Preset: compiler.PresetErrorsOnly}))
		return
	}
	s.reload.clear()
	s.reload.reload()
}

func (s *Server) onBuild(err error, _ compiler.Stats) {
	if err == nil {
		return
	}
	s.logger.Error("rebuild failed", "error", err)
	if s.opts.LiveReloadEnabled() {
		s.reload.buildFailed(err.Error())
	}
}

func (s *Server) output() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputPath
}

func (s *Server) serveOutput(w http.ResponseWriter, r *http.Request) {
	root := s.output()
	if root == "" {
		http.Error(w, "waiting for the first build", http.StatusServiceUnavailable)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	file := filepath.Join(root, filepath.FromSlash(name))

	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, "index.html")
		_, err = os.Stat(file)
	}
	if err != nil {
		// Unknown routes without an extension belong to the client-side
		// router.
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		file = filepath.Join(root, "index.html")
		if _, err := os.Stat(file); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	if filepath.Ext(file) == ".html" && s.opts.LiveReloadEnabled() {
		s.serveHTML(w, r, file)
		return
	}
	http.ServeFile(w, r, file)
}

func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data = injectReloadScript(data)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

func injectReloadScript(html []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if idx < 0 {
		return append(html, reloadScript...)
	}
	out := make([]byte, 0, len(html)+len(reloadScript))
	out = append(out, html[:idx]...)
	out = append(out, reloadScript...)
	out = append(out, html[idx:]...)
	return out
}
