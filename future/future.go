// Package future provides the Promise/Future pair used as the completion
// handle of pipelines and retry executions.
// Inspired by https://github.com/jizhuozhi/go-future
package future

import (
	"context"
)

// Promise is the write end of a single-assignment result. The value or error
// it stores is observed through the Future created by the Promise.
//
// Setting the Promise synchronizes-with every successful return of a function
// waiting on the Future (Get, GetContext, or a receive from Done).
type Promise[T any] struct {
	state *state[T]
}

// NewPromise creates a new Promise object.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{
		state: newState[T](),
	}
}

// Set sets the value and error of the Promise.
// It panics if the Promise is already satisfied.
func (p *Promise[T]) Set(val T, err error) {
	if !p.state.set(val, err) {
		panic("promise already satisfied")
	}
}

// SetSafety sets the value and error of the Promise, and it will return false if already set.
func (p *Promise[T]) SetSafety(val T, err error) bool {
	return p.state.set(val, err)
}

// Future returns a Future object associated with the Promise.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{state: p.state}
}

// Free returns true if the Promise is not set.
func (p *Promise[T]) Free() bool {
	return !p.state.isDone()
}

// Future is the read end of a Promise.
type Future[T any] struct {
	state *state[T]
}

// Get blocks until the Future is done and returns its value and error.
func (f *Future[T]) Get() (T, error) {
	return f.state.get()
}

// GetContext is Get bounded by ctx. It returns ctx.Err() when ctx is done
// first; the Future itself is left untouched.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.state.done:
		return f.state.val, f.state.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the Future is done.
func (f *Future[T]) Done() <-chan struct{} {
	return f.state.done
}

// Subscribe registers a callback to be called when the Future is done.
//
// NOTE: The callback is called in the goroutine that completes the Future, or
// immediately in the caller's goroutine when the Future is already done.
// The callback should not contain any blocking operations.
func (f *Future[T]) Subscribe(cb func(val T, err error)) {
	f.state.subscribe(cb)
}

// IsDone returns true if the Future is done.
func (f *Future[T]) IsDone() bool {
	return f.state.isDone()
}
