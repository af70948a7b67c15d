// Package devserver defines the development server contract used by the
// build bridge and provides a default HTTP implementation with live reload.
package devserver

import (
	"log/slog"
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// DevServer serves the output of a compiler and drives its rebuilds.
type DevServer interface {
	// StartCallback starts the server and invokes cb once it is listening
	// or has failed to start.
	StartCallback(cb func(error))
	// StopCallback stops the server and invokes cb once it has stopped.
	// Stopping a server that never started is allowed.
	StopCallback(cb func())
	// Address returns the bound address. ok is false until the server has
	// started.
	Address() (addr Address, ok bool)
}

// Factory creates a dev server wrapping a compiler.
type Factory interface {
	NewDevServer(opts compiler.DevServerOptions, c compiler.Compiler) (DevServer, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(opts compiler.DevServerOptions, c compiler.Compiler) (DevServer, error)

func (f FactoryFunc) NewDevServer(opts compiler.DevServerOptions, c compiler.Compiler) (DevServer, error) {
	return f(opts, c)
}

// DefaultFactory builds Server instances.
type DefaultFactory struct {
	Logger       *slog.Logger
	Metrics      prometheus.Gatherer
	WatchOptions compiler.WatchOptions
}

func (f DefaultFactory) NewDevServer(opts compiler.DevServerOptions, c compiler.Compiler) (DevServer, error) {
	var options []Option
	if f.Logger != nil {
		options = append(options, WithLogger(f.Logger))
	}
	if f.Metrics != nil {
		options = append(options, WithMetrics(f.Metrics))
	}
	options = append(options, WithWatchOptions(f.WatchOptions))
	return New(opts, c, options...), nil
}

// Address is where a dev server listens: a PipeAddress or a SocketAddress.
type Address interface {
	String() string
	address()
}

// PipeAddress is a named pipe or unix socket path.
type PipeAddress struct {
	Path string
}

func (a PipeAddress) String() string { return a.Path }
func (PipeAddress) address()         {}

// SocketAddress is a TCP endpoint.
type SocketAddress struct {
	Port    int
	Address string
	// Family is "IPv4" or "IPv6".
	Family string
}

func (a SocketAddress) String() string {
	return net.JoinHostPort(a.Address, strconv.Itoa(a.Port))
}
func (SocketAddress) address() {}

// AddressFromNet converts a listener address.
func AddressFromNet(addr net.Addr) (Address, bool) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if a == nil {
			return nil, false
		}
		family := "IPv6"
		if a.IP.To4() != nil {
			family = "IPv4"
		}
		host := a.IP.String()
		if a.IP == nil {
			host = ""
		}
		return SocketAddress{Port: a.Port, Address: host, Family: family}, true
	case *net.UnixAddr:
		if a == nil {
			return nil, false
		}
		return PipeAddress{Path: a.Name}, true
	case nil:
		return nil, false
	default:
		if s := addr.String(); s != "" {
			return PipeAddress{Path: s}, true
		}
		return nil, false
	}
}
