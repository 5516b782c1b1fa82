package flow

import (
	"context"

	"github.com/pkg/errors"
)

// DoFirst runs fn before anything else at subscription time. Hooks added
// later run first.
func (m Mono[T]) DoFirst(fn func(ctx context.Context)) Mono[T] {
	p := m.p.clone()
	p.first = append(p.first, fn)
	return Mono[T]{p: p}
}

func (m Mono[T]) DoOnSubscribe(fn func(ctx context.Context)) Mono[T] {
	p := m.p.clone()
	p.onSubscribe = append(p.onSubscribe, fn)
	return Mono[T]{p: p}
}

// DoOnRequest runs fn with the requested demand, which is always Unbounded.
func (m Mono[T]) DoOnRequest(fn func(ctx context.Context, n int64)) Mono[T] {
	p := m.p.clone()
	p.onRequest = append(p.onRequest, fn)
	return Mono[T]{p: p}
}

// DoOnNext runs fn with the emitted value. A failing fn turns the value into
// an error.
func (m Mono[T]) DoOnNext(fn func(ctx context.Context, v T)) Mono[T] {
	return Mono[T]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		if s.kind == SignalNext {
			if err := r.call(fr, ctx, SignalNext, func(ctx context.Context) { fn(ctx, as[T](s.value)) }); err != nil {
				next(ctx, errSignal(err))
				return
			}
		}
		next(ctx, s)
	})}
}

// DoOnSuccess runs fn on success, with the zero value when m completed
// empty.
func (m Mono[T]) DoOnSuccess(fn func(ctx context.Context, v T)) Mono[T] {
	return Mono[T]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		if s.kind != SignalError {
			if err := r.call(fr, ctx, s.kind, func(ctx context.Context) { fn(ctx, as[T](s.value)) }); err != nil {
				next(ctx, errSignal(err))
				return
			}
		}
		next(ctx, s)
	})}
}

// DoOnEach runs fn for the terminal signal of m: SignalNext with the value,
// SignalComplete when empty, or SignalError with the error.
func (m Mono[T]) DoOnEach(fn func(ctx context.Context, sig Signal, v T, err error)) Mono[T] {
	return Mono[T]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		herr := r.call(fr, ctx, s.kind, func(ctx context.Context) { fn(ctx, s.kind, as[T](s.value), s.err) })
		next(ctx, hookFailed(s, herr, "on each"))
	})}
}

// DoOnError runs fn with the error of m.
func (m Mono[T]) DoOnError(fn func(ctx context.Context, err error)) Mono[T] {
	return Mono[T]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		if s.kind != SignalError {
			next(ctx, s)
			return
		}
		herr := r.call(fr, ctx, SignalError, func(ctx context.Context) { fn(ctx, s.err) })
		next(ctx, hookFailed(s, herr, "on error"))
	})}
}

// DoAfterTerminate runs fn once the pipeline has terminated, successfully or
// not, before the subscription resolves.
func (m Mono[T]) DoAfterTerminate(fn func(ctx context.Context)) Mono[T] {
	p := m.p.clone()
	p.afterTerminate = append(p.afterTerminate, fn)
	return Mono[T]{p: p}
}

// DoOnCancel runs fn when the subscription is canceled. fn does not run
// through the interceptor chain.
func (m Mono[T]) DoOnCancel(fn func()) Mono[T] {
	p := m.p.clone()
	p.onCancel = append(p.onCancel, fn)
	return Mono[T]{p: p}
}

// DoFinally runs fn with SignalComplete, SignalError or SignalCancel right
// before the subscription resolves. fn does not run through the interceptor
// chain.
func (m Mono[T]) DoFinally(fn func(sig Signal)) Mono[T] {
	p := m.p.clone()
	p.finally = append(p.finally, fn)
	return Mono[T]{p: p}
}

// hookFailed returns the signal to pass on after a hook observing s failed
// with herr.
func hookFailed(s signal, herr error, hook string) signal {
	switch {
	case herr == nil:
		return s
	case s.kind == SignalError:
		return errSignal(errors.WithMessagef(s.err, "%s hook failed: %v", hook, herr))
	default:
		return errSignal(herr)
	}
}
