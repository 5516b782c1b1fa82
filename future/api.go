package future

import (
	"context"

	"github.com/saltfishpr/resilience/routine"
	"github.com/saltfishpr/resilience/scheduler"
)

// Submit runs f on a lane of s and returns its Future. A panic in f completes
// the Future with a *routine.RecoveredError, and a rejection by s completes it
// with the error of s.
func Submit[T any](s scheduler.Scheduler, f func(ctx context.Context) (T, error)) *Future[T] {
	p := NewPromise[T]()
	err := s.Schedule(func(ctx context.Context) {
		var val T
		var err error
		if perr := routine.Try(func() { val, err = f(ctx) }); perr != nil {
			err = perr
		}
		p.Set(val, err)
	})
	if err != nil {
		var zero T
		p.Set(zero, err)
	}
	return p.Future()
}

// Done returns a Future completed with val.
func Done[T any](val T) *Future[T] {
	return Done2(val, nil)
}

// Done2 returns a Future completed with val and err.
func Done2[T any](val T, err error) *Future[T] {
	s := newState[T]()
	s.set(val, err)
	return &Future[T]{state: s}
}

// Then returns a Future completed with the result of cb applied to the result
// of f. cb runs in the goroutine that completes f.
func Then[T any, R any](f *Future[T], cb func(T, error) (R, error)) *Future[R] {
	s := newState[R]()
	f.state.subscribe(func(val T, err error) {
		rval, rerr := cb(val, err)
		s.set(rval, rerr)
	})
	return &Future[R]{state: s}
}
