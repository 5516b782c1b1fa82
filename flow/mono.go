package flow

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/saltfishpr/resilience/future"
	"github.com/saltfishpr/resilience/scheduler"
)

// Mono is a lazy asynchronous pipeline emitting at most one value. A Mono is
// immutable: every operator returns a new Mono and the same Mono can be
// subscribed any number of times.
type Mono[T any] struct {
	p *pipeline
}

func newMono[T any](src source) Mono[T] {
	return Mono[T]{p: &pipeline{source: src}}
}

// Sink is handed to the function of Create. Only the first call to any of its
// methods has an effect.
//
// ctx must carry the lane the caller runs on (for example the context of a
// scheduler task); downstream callbacks run on that lane.
type Sink[T any] interface {
	Success(ctx context.Context, v T)
	Empty(ctx context.Context)
	Error(ctx context.Context, err error)
}

type sink[T any] struct {
	r    *run
	emit emitFunc
	done atomic.Bool
}

func (s *sink[T]) Success(ctx context.Context, v T) {
	if s.done.CompareAndSwap(false, true) {
		s.emit(s.r.bind(ctx), signal{kind: SignalNext, value: v})
	}
}

func (s *sink[T]) Empty(ctx context.Context) {
	if s.done.CompareAndSwap(false, true) {
		s.emit(s.r.bind(ctx), signal{kind: SignalComplete})
	}
}

func (s *sink[T]) Error(ctx context.Context, err error) {
	if s.done.CompareAndSwap(false, true) {
		s.emit(s.r.bind(ctx), errSignal(err))
	}
}

// Create returns a Mono whose value is produced by fn, possibly later and on
// another lane, through the given Sink. A panic in fn before the sink is
// used becomes the error of the Mono.
func Create[T any](fn func(ctx context.Context, sink Sink[T])) Mono[T] {
	return newMono[T](func(r *run, fr *frame, ctx context.Context, emit emitFunc) {
		s := &sink[T]{r: r, emit: emit}
		if err := r.call(fr, ctx, SignalSubscribe, func(ctx context.Context) { fn(ctx, s) }); err != nil {
			s.Error(ctx, err)
		}
	})
}

func Just[T any](v T) Mono[T] {
	return newMono[T](func(_ *run, _ *frame, ctx context.Context, emit emitFunc) {
		emit(ctx, signal{kind: SignalNext, value: v})
	})
}

func Error[T any](err error) Mono[T] {
	return newMono[T](func(_ *run, _ *frame, ctx context.Context, emit emitFunc) {
		emit(ctx, errSignal(err))
	})
}

// Empty returns a Mono that completes without a value.
func Empty[T any]() Mono[T] {
	return newMono[T](func(_ *run, _ *frame, ctx context.Context, emit emitFunc) {
		emit(ctx, signal{kind: SignalComplete})
	})
}

// FromFunc returns a Mono emitting the result of fn, called on the
// subscribing lane.
func FromFunc[T any](fn func(ctx context.Context) (T, error)) Mono[T] {
	return newMono[T](func(r *run, fr *frame, ctx context.Context, emit emitFunc) {
		var (
			v   T
			err error
		)
		if perr := r.call(fr, ctx, SignalSubscribe, func(ctx context.Context) { v, err = fn(ctx) }); perr != nil {
			err = perr
		}
		if err != nil {
			emit(ctx, errSignal(err))
			return
		}
		emit(ctx, signal{kind: SignalNext, value: v})
	})
}

// FromFuture returns a Mono emitting the result of f. When f is not done at
// subscription time, its result is delivered on a lane of scheduler.Default.
func FromFuture[T any](f *future.Future[T]) Mono[T] {
	return newMono[T](func(r *run, _ *frame, ctx context.Context, emit emitFunc) {
		deliver := func(ctx context.Context, v T, err error) {
			if err != nil {
				emit(ctx, errSignal(err))
				return
			}
			emit(ctx, signal{kind: SignalNext, value: v})
		}
		if f.IsDone() {
			v, err := f.Get()
			deliver(ctx, v, err)
			return
		}
		f.Subscribe(func(v T, err error) {
			if r.canceled() {
				return
			}
			serr := scheduler.Default().Schedule(func(tctx context.Context) {
				deliver(r.bind(tctx), v, err)
			})
			if serr != nil {
				deliver(r.bind(context.Background()), v, serr)
			}
		})
	})
}

// Defer calls fn at subscription time and subscribes to the Mono it returns.
func Defer[T any](fn func(ctx context.Context) Mono[T]) Mono[T] {
	return newMono[T](func(r *run, fr *frame, ctx context.Context, emit emitFunc) {
		var inner Mono[T]
		if err := r.call(fr, ctx, SignalSubscribe, func(ctx context.Context) { inner = fn(ctx) }); err != nil {
			emit(ctx, errSignal(err))
			return
		}
		inner.p.attach(r, inner.p.frame(ctx, fr), ctx, emit)
	})
}

// Delay returns a Mono emitting d on a lane of s once d has elapsed. It fails
// with the rejection error when s refuses the task.
func Delay(d time.Duration, s scheduler.Scheduler) Mono[time.Duration] {
	return newMono[time.Duration](func(r *run, _ *frame, _ context.Context, emit emitFunc) {
		r.addTimer(s.ScheduleAfter(d, func(tctx context.Context) {
			emit(r.bind(tctx), signal{kind: SignalNext, value: d})
		}, func(err error) {
			emit(r.bind(context.Background()), errSignal(err))
		}))
	})
}

// Subscription is the handle of one subscription to a Mono.
type Subscription[T any] struct {
	run     *run
	promise *future.Promise[T]
}

// Subscribe starts the pipeline on the lane carried by ctx. Canceling ctx
// cancels the subscription with context.Cause(ctx).
func (m Mono[T]) Subscribe(ctx context.Context) *Subscription[T] {
	s := &Subscription[T]{promise: future.NewPromise[T]()}
	s.run = m.p.subscribe(ctx, func(sig signal) {
		var zero T
		switch sig.kind {
		case SignalNext:
			s.promise.Set(as[T](sig.value), nil)
		case SignalError:
			s.promise.Set(zero, sig.err)
		default:
			s.promise.Set(zero, nil)
		}
	})
	return s
}

// Block subscribes and waits for the result.
func (m Mono[T]) Block(ctx context.Context) (T, error) {
	return m.Subscribe(ctx).Get()
}

// Cancel cancels the subscription. The Future resolves with
// context.Canceled once every in-flight callback has returned; Cancel does
// not wait for that.
func (s *Subscription[T]) Cancel() {
	s.run.cancelRun(context.Canceled)
}

// Future resolves when the pipeline has terminated and no callback of it is
// running on any lane.
func (s *Subscription[T]) Future() *future.Future[T] {
	return s.promise.Future()
}

func (s *Subscription[T]) Get() (T, error) {
	return s.promise.Future().Get()
}

func (s *Subscription[T]) Done() <-chan struct{} {
	return s.promise.Future().Done()
}
