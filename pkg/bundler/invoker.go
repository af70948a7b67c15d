package bundler

import (
	"context"
	"errors"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
	"github.com/dosanma1/forge-bundler/pkg/stream"
)

// ErrNoCompiler is reported when a factory returns neither a compiler nor an
// error.
var ErrNoCompiler = errors.New("compiler factory returned no compiler")

// createCompiler resolves the compiler of one subscription. Watching is
// decided later by the caller, so the factory always sees watch disabled.
func createCompiler(cfg *compiler.Config, o *options) *stream.Observable[compiler.Compiler] {
	prepared := cfg.Clone()
	prepared.Watch = false

	return stream.FromFunc(
		func(ctx context.Context) (compiler.Compiler, error) {
			c, err := o.compilerFactory.NewCompiler(ctx, prepared)
			if err != nil {
				return nil, err
			}
			if c == nil {
				return nil, ErrNoCompiler
			}
			return c, nil
		},
		// A compiler created after the consumer left is still ours to close.
		func(c compiler.Compiler) { c.Close(func(error) {}) },
	)
}
