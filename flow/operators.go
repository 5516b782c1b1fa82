package flow

import (
	"context"
	"time"

	"github.com/saltfishpr/resilience/scheduler"
)

// Map transforms the value of m with fn. An error returned by fn becomes the
// error of the result.
func Map[T, R any](m Mono[T], fn func(ctx context.Context, v T) (R, error)) Mono[R] {
	return Mono[R]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		if s.kind != SignalNext {
			next(ctx, s)
			return
		}
		var (
			out R
			err error
		)
		if perr := r.call(fr, ctx, SignalNext, func(ctx context.Context) { out, err = fn(ctx, as[T](s.value)) }); perr != nil {
			err = perr
		}
		if err != nil {
			next(ctx, errSignal(err))
			return
		}
		next(ctx, signal{kind: SignalNext, value: out})
	})}
}

// FlatMap subscribes to the Mono returned by fn for the value of m and
// relays its result.
func FlatMap[T, R any](m Mono[T], fn func(ctx context.Context, v T) Mono[R]) Mono[R] {
	return Mono[R]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		if s.kind != SignalNext {
			next(ctx, s)
			return
		}
		var inner Mono[R]
		if err := r.call(fr, ctx, SignalNext, func(ctx context.Context) { inner = fn(ctx, as[T](s.value)) }); err != nil {
			next(ctx, errSignal(err))
			return
		}
		inner.p.attach(r, inner.p.frame(ctx, fr), ctx, next)
	})}
}

// Then ignores the value of m and continues with other once m completes
// successfully.
func Then[T, R any](m Mono[T], other Mono[R]) Mono[R] {
	return Mono[R]{p: m.p.withStage(func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc) {
		if s.kind == SignalError {
			next(ctx, s)
			return
		}
		other.p.attach(r, other.p.frame(ctx, fr), ctx, next)
	})}
}

// PublishOn delivers every signal of m on a lane of s. When s rejects the
// hop, the error of the rejection is delivered on the current lane instead.
func (m Mono[T]) PublishOn(s scheduler.Scheduler) Mono[T] {
	return Mono[T]{p: m.p.withStage(func(r *run, _ *frame, ctx context.Context, sig signal, next emitFunc) {
		err := s.Schedule(func(tctx context.Context) {
			if !r.canceled() {
				next(r.bind(tctx), sig)
			}
		})
		if err != nil {
			next(ctx, errSignal(err))
		}
	})}
}

// DelayElement delays the value of m by d, delivering it on a lane of s.
// Errors and empty completion are not delayed.
func (m Mono[T]) DelayElement(d time.Duration, s scheduler.Scheduler) Mono[T] {
	return Mono[T]{p: m.p.withStage(func(r *run, _ *frame, ctx context.Context, sig signal, next emitFunc) {
		if sig.kind != SignalNext {
			next(ctx, sig)
			return
		}
		r.addTimer(s.ScheduleAfter(d, func(tctx context.Context) {
			next(r.bind(tctx), sig)
		}, func(err error) {
			next(r.bind(context.Background()), errSignal(err))
		}))
	})}
}

// ContextWrite adds fn to the functions building the metadata of a
// subscription. They run at subscription time, downstream first, so a value
// written downstream is visible to writes declared upstream of it.
func (m Mono[T]) ContextWrite(fn func(ctx context.Context, meta Meta) Meta) Mono[T] {
	p := m.p.clone()
	p.writes = append(p.writes, fn)
	return Mono[T]{p: p}
}

// Intercept adds ic to the interceptor chain every callback of the pipeline
// runs through. Interceptors added first are outermost.
func (m Mono[T]) Intercept(ic Interceptor) Mono[T] {
	p := m.p.clone()
	p.interceptors = append(p.interceptors, ic)
	return Mono[T]{p: p}
}
