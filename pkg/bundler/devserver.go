package bundler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/devserver"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

// ErrServerAddressNotDefined is reported when a started dev server has no
// address.
var ErrServerAddressNotDefined = errors.New("dev-server address info is not defined")

// DevServerResult is a build result together with where the dev server
// serves it. The address fields stay empty until the server has started.
type DevServerResult struct {
	BuildResult
	Port    int    `json:"port,omitempty"`
	Family  string `json:"family,omitempty"`
	Address string `json:"address,omitempty"`
}

// RunDevServer serves cfg through a dev server and emits a result after every
// build the server triggers. The stream only ends with an error or when the
// subscription is closed.
func RunDevServer(cfg *compiler.Config, opts ...Option) *stream.Observable[DevServerResult] {
	o := newOptions(opts)

	return stream.SwitchMap(createCompiler(cfg, o), func(c compiler.Compiler) *stream.Observable[DevServerResult] {
		return stream.New(func(e *stream.Emitter[DevServerResult]) stream.Teardown {
			s := &session{compiler: c}
			state := &devServerState{}

			s.setUntap(c.Hooks().Done.Tap("forge-bundler", func(stats compiler.Stats) {
				if stats == nil {
					return
				}
				e.Next(state.recordBuild(o.translate(cfg, stats)))
			}))

			server, err := newDevServer(o.devServerFactoryFor(cfg), o.devServerOptions(cfg), c)
			if err != nil {
				e.Error(err)
				return s.teardown
			}
			s.setServer(server)

			server.StartCallback(func(err error) {
				if err != nil {
					e.Error(err)
					return
				}
				addr, ok := server.Address()
				if !ok || addr == nil {
					e.Error(ErrServerAddressNotDefined)
					return
				}
				state.recordServer(addr)
			})

			return s.teardown
		})
	})
}

func newDevServer(f devserver.Factory, opts compiler.DevServerOptions, c compiler.Compiler) (srv devserver.DevServer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to create dev server: %v", r)
		}
	}()
	return f.NewDevServer(opts, c)
}

// serverInfo is the flattened form of a resolved server address.
type serverInfo struct {
	port    int
	family  string
	address string
}

func serverInfoFrom(addr devserver.Address) serverInfo {
	switch a := addr.(type) {
	case devserver.SocketAddress:
		return serverInfo{port: a.Port, family: a.Family, address: a.Address}
	default:
		return serverInfo{address: addr.String()}
	}
}

// devServerState keeps the latest build and the server start outcome apart
// and combines them only when a result is emitted.
type devServerState struct {
	mu          sync.Mutex
	latestBuild *BuildResult
	serverStart *serverInfo
}

func (st *devServerState) recordBuild(b BuildResult) DevServerResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.latestBuild = &b
	return mergeDevServerResult(st.latestBuild, st.serverStart)
}

func (st *devServerState) recordServer(addr devserver.Address) {
	info := serverInfoFrom(addr)
	st.mu.Lock()
	st.serverStart = &info
	st.mu.Unlock()
}

func mergeDevServerResult(build *BuildResult, server *serverInfo) DevServerResult {
	var r DevServerResult
	if build != nil {
		r.BuildResult = *build
	}
	if server != nil {
		r.Port = server.port
		r.Family = server.family
		r.Address = server.address
	}
	return r
}
