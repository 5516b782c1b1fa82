package retry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/saltfishpr/resilience/flow"
	"github.com/saltfishpr/resilience/future"
	"github.com/saltfishpr/resilience/propagation"
	"github.com/saltfishpr/resilience/reqctx"
	"github.com/saltfishpr/resilience/routine"
)

// AttemptAttr is the attribute of the per-attempt request context holding
// the attempt number.
const AttemptAttr = "retry.attempt"

// Operation starts one attempt of a logical request. It is called with the
// attempt's request context current on the lane carried by ctx, and every
// callback of the returned Mono observes that request context. The
// operation should stop early when ctx is done.
type Operation[T any] func(ctx context.Context) flow.Mono[T]

// Retrier executes operations, retrying them as its Decision and backoff
// allow. A Retrier is safe for concurrent use.
type Retrier[T any] struct {
	decision Decision[T]
	opts     retryOptions
	metrics  *metrics
	tracer   trace.Tracer
}

func New[T any](decision Decision[T], options ...RetryOption) *Retrier[T] {
	opts := newRetryOptions(options)
	m, err := newMetrics(opts.meterProvider)
	if err != nil {
		opts.logger.Warn().Err(err).Msg("retry: metrics disabled")
		m, _ = newMetrics(noop.NewMeterProvider())
	}
	return &Retrier[T]{
		decision: decision,
		opts:     opts,
		metrics:  m,
		tracer:   opts.tracerProvider.Tracer(instrumentationName),
	}
}

// Do executes op and waits for the result.
func (r *Retrier[T]) Do(ctx context.Context, rc *reqctx.Context, op Operation[T]) (T, error) {
	return r.Execute(ctx, rc, op).Get()
}

// Execute starts executing op on behalf of rc and returns immediately. The
// first attempt runs on the lane carried by ctx, or on the scheduler when ctx
// carries none. Canceling ctx aborts the execution, and so does a scheduler
// rejecting an attempt (for example scheduler.ErrClosed).
func (r *Retrier[T]) Execute(ctx context.Context, rc *reqctx.Context, op Operation[T]) *Execution[T] {
	ectx, cancel := context.WithCancelCause(ctx)
	e := &Execution[T]{
		r:       r,
		rc:      rc,
		op:      op,
		ctx:     ectx,
		cancel:  cancel,
		backoff: WithMaxAttempts(r.opts.backoff(), r.opts.maxAttempts),
		promise: future.NewPromise[T](),
		logger:  r.opts.logger.With().Stringer("request_id", rc.ID()).Logger(),
	}
	e.mu.Lock()
	e.stop = context.AfterFunc(ectx, func() {
		e.abort(context.Cause(ectx))
	})
	e.mu.Unlock()

	if _, ok := reqctx.LaneFrom(ctx); ok {
		e.attempt(ctx)
	} else if err := r.opts.scheduler.Schedule(e.attempt); err != nil {
		e.finish(StateAborted, Outcome[T]{Err: err})
	}
	return e
}

// Execution is one logical request being executed by a Retrier.
type Execution[T any] struct {
	r       *Retrier[T]
	rc      *reqctx.Context
	op      Operation[T]
	ctx     context.Context
	cancel  context.CancelCauseFunc
	backoff Backoff
	promise *future.Promise[T]
	logger  zerolog.Logger

	state    atomic.Int32
	attempts atomic.Int32

	mu    sync.Mutex
	stop  func() bool
	timer func() bool
}

// Cancel aborts the execution. A pending retry is dropped and the in-flight
// attempt is asked to cancel; Cancel does not wait for it.
func (e *Execution[T]) Cancel() {
	e.cancel(context.Canceled)
}

// Future resolves with the final outcome: the value of a successful attempt,
// the last attempt's own result once exhausted, or the cause of an abort.
func (e *Execution[T]) Future() *future.Future[T] {
	return e.promise.Future()
}

func (e *Execution[T]) Get() (T, error) {
	return e.promise.Future().Get()
}

func (e *Execution[T]) State() State {
	return State(e.state.Load())
}

// Attempts returns the number of attempts started so far.
func (e *Execution[T]) Attempts() int {
	return int(e.attempts.Load())
}

func (e *Execution[T]) attempt(laneCtx context.Context) {
	if e.State().Terminal() {
		return
	}
	if e.ctx.Err() != nil {
		e.abort(context.Cause(e.ctx))
		return
	}
	n := int(e.attempts.Add(1))
	e.state.CompareAndSwap(int32(StateAwaitingBackoff), int32(StateAttempting))

	arc := e.rc.Derive()
	arc.SetAttr(AttemptAttr, n)

	spanCtx, span := e.r.tracer.Start(e.ctx, "retry.attempt", trace.WithAttributes(
		attribute.Int(attrAttempt, n),
		attribute.String(attrRequestID, e.rc.ID().String()),
	))
	ctx := reqctx.Rebind(spanCtx, laneCtx)
	start := time.Now()

	scope, err := arc.Push(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		e.finish(StateAborted, Outcome[T]{Attempt: n, Err: err, Start: start, End: time.Now()})
		return
	}
	e.logger.Debug().Int("attempt", n).Msg("retry: attempt started")

	var m flow.Mono[T]
	if perr := routine.Try(func() { m = e.op(ctx) }); perr != nil {
		m = flow.Error[T](perr)
	}
	scope.Close()

	sub := propagation.ContextWrite(m, arc).Subscribe(ctx)
	sub.Future().Subscribe(func(v T, err error) {
		out := Outcome[T]{Attempt: n, Value: v, Err: err, Start: start, End: time.Now()}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.r.metrics.recordAttempt(e.ctx, out.Failed())
		e.decide(out)
	})
}

func (e *Execution[T]) decide(out Outcome[T]) {
	if e.State().Terminal() {
		return
	}
	// a canceled execution consults no decision, even when the attempt
	// resolved before the abort did
	if e.ctx.Err() != nil {
		e.abort(context.Cause(e.ctx))
		return
	}

	var verdict Verdict
	if err := routine.Try(func() { verdict = e.r.decision.Decide(out.Attempt, out) }); err != nil {
		e.finish(StateAborted, Outcome[T]{Attempt: out.Attempt, Err: err, Start: out.Start, End: out.End})
		return
	}
	if !verdict.Retry() {
		if out.Failed() {
			e.finish(StateAborted, out)
		} else {
			e.finish(StateSucceeded, out)
		}
		return
	}

	delay, ok := verdict.Delay()
	if !ok {
		delay = e.backoff.NextDelay(out.Attempt)
	}
	if delay == Stop || out.Attempt >= e.r.opts.maxAttempts {
		e.finish(StateExhausted, out)
		return
	}
	if b := e.r.opts.budget; b != nil && !b.Allow() {
		e.logger.Warn().Int("attempt", out.Attempt).Msg("retry: retry budget exhausted")
		e.finish(StateExhausted, out)
		return
	}
	delay = max(delay, 0)

	e.mu.Lock()
	ok = e.state.CompareAndSwap(int32(StateAttempting), int32(StateAwaitingBackoff))
	e.mu.Unlock()
	if !ok {
		return
	}
	e.logger.Debug().
		Int("attempt", out.Attempt).
		Dur("delay", delay).
		AnErr("cause", out.Err).
		Msg("retry: retry scheduled")
	e.r.metrics.recordDelay(e.ctx, delay)

	// the scheduler may run the next attempt before ScheduleAfter returns, so
	// e.mu must not be held here
	timer := e.r.opts.scheduler.ScheduleAfter(delay, e.attempt, func(err error) {
		e.finish(StateAborted, Outcome[T]{Attempt: out.Attempt, Value: out.Value, Err: err, Start: out.Start, End: out.End})
	})

	e.mu.Lock()
	waiting := e.State() == StateAwaitingBackoff && e.Attempts() == out.Attempt
	if waiting {
		e.timer = timer
	}
	terminal := e.State().Terminal()
	e.mu.Unlock()
	if terminal {
		timer()
	}
}

func (e *Execution[T]) abort(cause error) {
	e.finish(StateAborted, Outcome[T]{Attempt: e.Attempts(), Err: cause})
}

func (e *Execution[T]) finish(s State, out Outcome[T]) {
	e.mu.Lock()
	if e.State().Terminal() {
		e.mu.Unlock()
		return
	}
	e.state.Store(int32(s))
	timer, stop := e.timer, e.stop
	e.timer = nil
	e.mu.Unlock()

	if timer != nil {
		timer()
	}
	stop()
	// cancels the in-flight attempt, if any
	e.cancel(out.Err)

	ev := e.logger.Info()
	if s == StateExhausted {
		ev = e.logger.Warn()
	} else if s == StateSucceeded {
		ev = e.logger.Debug()
	}
	ev.Stringer("state", s).Int("attempt", out.Attempt).AnErr("error", out.Err).Msg("retry: execution finished")
	e.r.metrics.recordExecution(context.WithoutCancel(e.ctx), s)

	e.promise.Set(out.Value, out.Err)
}
