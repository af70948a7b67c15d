package stream

import (
	"context"
	"fmt"
)

// Of emits v and completes.
func Of[T any](v T) *Observable[T] {
	return New(func(e *Emitter[T]) Teardown {
		if e.Next(v) {
			e.Complete()
		}
		return nil
	})
}

// Fail terminates every subscription with err without emitting.
func Fail[T any](err error) *Observable[T] {
	return New(func(e *Emitter[T]) Teardown {
		e.Error(err)
		return nil
	})
}

// FromFunc emits the single value produced by fn and completes. fn runs on
// its own goroutine; a returned error or a panic terminates the stream with
// an error. If the subscription stops before the value could be delivered,
// release (when non-nil) is called with it so the value is not leaked.
func FromFunc[T any](fn func(ctx context.Context) (T, error), release func(T)) *Observable[T] {
	return New(func(e *Emitter[T]) Teardown {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			v, err := call(ctx, fn)
			if err != nil {
				e.Error(err)
				return
			}
			if !e.Next(v) {
				if release != nil {
					release(v)
				}
				return
			}
			e.Complete()
		}()
		return Teardown(cancel)
	})
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream: %v", r)
		}
	}()
	return fn(ctx)
}

// SwitchMap subscribes to the Observable returned by project for every value
// of src, unsubscribing from the previous one first. It completes once src
// and the active inner Observable have both completed. An error from either
// side terminates the result.
func SwitchMap[T, R any](src *Observable[T], project func(T) *Observable[R]) *Observable[R] {
	return New(func(e *Emitter[R]) Teardown {
		ctx, cancel := context.WithCancel(context.Background())
		outer := src.Subscribe(ctx)
		done := make(chan struct{})

		go func() {
			defer close(done)

			var inner *Subscription[R]
			defer func() {
				if inner != nil {
					inner.Close()
				}
				outer.Close()
			}()

			outerResults := outer.Results()
			var innerResults <-chan R

			for outerResults != nil || innerResults != nil {
				select {
				case v, ok := <-outerResults:
					if !ok {
						outerResults = nil
						if err := outer.Err(); err != nil {
							e.Error(err)
							return
						}
						continue
					}
					if inner != nil {
						inner.Close()
					}
					inner = project(v).Subscribe(ctx)
					innerResults = inner.Results()
				case r, ok := <-innerResults:
					if !ok {
						innerResults = nil
						if err := inner.Err(); err != nil {
							e.Error(err)
							return
						}
						continue
					}
					if !e.Next(r) {
						return
					}
				case <-e.Done():
					return
				}
			}

			e.Complete()
		}()

		return func() {
			cancel()
			<-done
		}
	})
}

// Collect drains a subscription and returns every value together with its
// terminal error.
func Collect[T any](s *Subscription[T]) ([]T, error) {
	var values []T
	for v := range s.Results() {
		values = append(values, v)
	}
	return values, s.Err()
}

// Map applies fn to every value of src.
func Map[T, R any](src *Observable[T], fn func(T) R) *Observable[R] {
	return New(func(e *Emitter[R]) Teardown {
		ctx, cancel := context.WithCancel(context.Background())
		sub := src.Subscribe(ctx)
		done := make(chan struct{})

		go func() {
			defer close(done)
			defer sub.Close()

			for {
				select {
				case v, ok := <-sub.Results():
					if !ok {
						if err := sub.Err(); err != nil {
							e.Error(err)
						} else {
							e.Complete()
						}
						return
					}
					if !e.Next(fn(v)) {
						return
					}
				case <-e.Done():
					return
				}
			}
		}()

		return func() {
			cancel()
			<-done
		}
	})
}
