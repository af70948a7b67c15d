// Package compiler defines the callback-based contract a bundler exposes to
// the build bridge: one-shot runs, continuous watch builds, a persistent
// "done" hook, and the stats each build reports.
package compiler

// Callback receives the outcome of a single build. err is set when the build
// could not be performed at all; errors found in the sources are reported
// through stats instead. stats may be nil.
type Callback func(err error, stats Stats)

// Compiler is a live bundler instance. A Compiler never receives overlapping
// Run, Watch and Close calls from the bridge.
type Compiler interface {
	// Run performs a single build and invokes cb once. A returned error means
	// the build could not be started.
	Run(cb Callback) error

	// Watch builds now and again on every change, invoking cb after each
	// build until the returned Watching is closed.
	Watch(opts WatchOptions, cb Callback) (Watching, error)

	// Close releases the compiler. cb is invoked once the compiler is closed.
	Close(cb func(error))

	// Hooks exposes the notifications fired by every build, including builds
	// driven by a dev server.
	Hooks() *Hooks
}

// Watching is the handle of an active watch. It must be closed before the
// compiler that created it.
type Watching interface {
	Close(cb func())
}
