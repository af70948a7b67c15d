// Package stream turns callback-driven sources into cancellable, ordered
// event sequences.
//
// An Observable is cold: every call to Subscribe runs its producer again,
// so resources created by the producer are never shared between
// subscriptions. The producer receives an Emitter for pushing values and
// returns a Teardown that releases whatever it acquired. The teardown runs
// exactly once, whether the subscription ends because the producer
// completed, failed, or the consumer went away.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Teardown releases the resources held by a producer.
type Teardown func()

// Observable is a lazily evaluated source of values.
type Observable[T any] struct {
	produce func(*Emitter[T]) Teardown
}

// New creates an Observable from a producer function.
//
// The producer runs on its own goroutine and should return promptly after
// wiring its callbacks; values are pushed later through the Emitter.
func New[T any](produce func(*Emitter[T]) Teardown) *Observable[T] {
	return &Observable[T]{produce: produce}
}

// Subscribe starts a new run of the producer. Cancelling ctx is
// equivalent to calling Close on the returned subscription.
func (o *Observable[T]) Subscribe(ctx context.Context) *Subscription[T] {
	s := newSubscription[T]()
	go s.watch(ctx)
	go func() {
		var td Teardown
		defer func() {
			if r := recover(); r != nil {
				s.terminate(fmt.Errorf("stream: producer panicked: %v", r))
			}
			s.register(td)
		}()
		td = o.produce(&Emitter[T]{s: s})
	}()
	return s
}

// Subscription is a single run of an Observable.
type Subscription[T any] struct {
	out      chan T
	stopped  chan struct{}
	ready    chan struct{}
	finished chan struct{}

	mu       sync.Mutex
	terminal bool
	err      error
	teardown Teardown
	inflight sync.WaitGroup
}

func newSubscription[T any]() *Subscription[T] {
	return &Subscription[T]{
		out:      make(chan T),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Results returns the channel of emitted values. It is closed once the
// subscription has terminated and its teardown has finished.
func (s *Subscription[T]) Results() <-chan T {
	return s.out
}

// Err returns the error that terminated the subscription, or nil if it
// completed, was closed by the consumer, or is still running.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed after the teardown has run and Results has been closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.finished
}

// Wait blocks until the subscription has fully terminated and returns its
// terminal error.
func (s *Subscription[T]) Wait() error {
	<-s.finished
	return s.Err()
}

// Close unsubscribes and blocks until the teardown has finished. It is safe
// to call more than once and from multiple goroutines.
func (s *Subscription[T]) Close() {
	s.terminate(nil)
	<-s.finished
}

func (s *Subscription[T]) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.terminate(nil)
	case <-s.stopped:
	}
}

func (s *Subscription[T]) register(td Teardown) {
	s.mu.Lock()
	s.teardown = td
	s.mu.Unlock()
	close(s.ready)
}

// terminate records the outcome and schedules the teardown. Only the first
// call has any effect.
func (s *Subscription[T]) terminate(err error) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	s.err = err
	close(s.stopped)
	s.mu.Unlock()

	go s.finish()
}

func (s *Subscription[T]) finish() {
	// The teardown is only known once the producer has returned.
	<-s.ready

	s.mu.Lock()
	td := s.teardown
	s.mu.Unlock()

	if td != nil {
		func() {
			defer func() { _ = recover() }()
			td()
		}()
	}

	s.inflight.Wait()
	close(s.out)
	close(s.finished)
}

// Emitter is the producer side of a subscription.
type Emitter[T any] struct {
	s *Subscription[T]
}

// Next delivers v to the consumer. It blocks until the value is received or
// the subscription stops, and reports whether the value was delivered.
func (e *Emitter[T]) Next(v T) bool {
	s := e.s
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return false
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.out <- v:
		return true
	case <-s.stopped:
		return false
	}
}

// Error terminates the subscription with err.
func (e *Emitter[T]) Error(err error) {
	if err == nil {
		err = errors.New("stream: terminated with nil error")
	}
	e.s.terminate(err)
}

// Complete terminates the subscription successfully.
func (e *Emitter[T]) Complete() {
	e.s.terminate(nil)
}

// Done is closed as soon as the subscription stops accepting values.
func (e *Emitter[T]) Done() <-chan struct{} {
	return e.s.stopped
}
