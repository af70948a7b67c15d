package bundler

import (
	"sync"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/devserver"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

// RunBundler builds cfg. With cfg.Watch unset it emits exactly one result and
// completes once the compiler is closed; otherwise it emits a result per
// rebuild until the subscription is closed.
func RunBundler(cfg *compiler.Config, opts ...Option) *stream.Observable[BuildResult] {
	o := newOptions(opts)

	return stream.SwitchMap(createCompiler(cfg, o), func(c compiler.Compiler) *stream.Observable[BuildResult] {
		return stream.New(func(e *stream.Emitter[BuildResult]) stream.Teardown {
			s := &session{compiler: c}

			callback := func(err error, stats compiler.Stats) {
				if err != nil {
					e.Error(err)
					return
				}
				if stats == nil {
					return
				}

				result := o.translate(cfg, stats)
				if cfg.Watch {
					e.Next(result)
					return
				}
				if !e.Next(result) {
					return
				}
				s.closeCompiler()
				e.Complete()
			}

			if cfg.Watch {
				watching, err := c.Watch(cfg.WatchOptions, callback)
				if err != nil {
					o.logger.Error("An error occurred during the build", "error", err)
					e.Error(err)
					return s.teardown
				}
				s.setWatching(watching)
				return s.teardown
			}

			if err := c.Run(callback); err != nil {
				o.logger.Error("An error occurred during the build", "error", err)
				e.Error(err)
			}
			return s.teardown
		})
	})
}

// session owns the handles of one subscription and releases them in order:
// the watcher or server first, the compiler last. Each release happens at
// most once.
type session struct {
	compiler compiler.Compiler

	mu       sync.Mutex
	watching compiler.Watching
	server   devserver.DevServer
	untap    func()

	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *session) setWatching(w compiler.Watching) {
	s.mu.Lock()
	s.watching = w
	s.mu.Unlock()
}

func (s *session) setServer(srv devserver.DevServer) {
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
}

func (s *session) setUntap(untap func()) {
	s.mu.Lock()
	s.untap = untap
	s.mu.Unlock()
}

// stop detaches from the compiler's hooks and stops the watcher or server,
// waiting for it to report back.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		untap, watching, server := s.untap, s.watching, s.server
		s.mu.Unlock()

		if untap != nil {
			untap()
		}
		if watching != nil {
			done := make(chan struct{})
			watching.Close(func() { close(done) })
			<-done
		}
		if server != nil {
			done := make(chan struct{})
			server.StopCallback(func() { close(done) })
			<-done
		}
	})
}

func (s *session) closeCompiler() {
	s.closeOnce.Do(func() {
		done := make(chan struct{})
		s.compiler.Close(func(error) { close(done) })
		<-done
	})
}

func (s *session) teardown() {
	s.stop()
	s.closeCompiler()
}
