package flow

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/saltfishpr/resilience/reqctx"
	"github.com/saltfishpr/resilience/routine"
)

var errCanceled = errors.New("flow: subscription canceled")

// frame is the metadata and interceptor chain a pipeline's callbacks run
// under. Inner pipelines (FlatMap, Then, Defer) run under a frame extending
// the one of the pipeline that subscribed them.
type frame struct {
	meta         Meta
	interceptors []Interceptor
}

type stage func(r *run, fr *frame, ctx context.Context, s signal, next emitFunc)

type source func(r *run, fr *frame, ctx context.Context, emit emitFunc)

// pipeline is the assembly-time description of a Mono. Operators never
// mutate a pipeline, they clone it.
type pipeline struct {
	source       source
	first        []func(ctx context.Context)
	onSubscribe  []func(ctx context.Context)
	onRequest    []func(ctx context.Context, n int64)
	stages       []stage
	writes       []func(ctx context.Context, meta Meta) Meta
	interceptors []Interceptor

	afterTerminate []func(ctx context.Context)
	onCancel       []func()
	finally        []func(sig Signal)
}

func (p *pipeline) clone() *pipeline {
	return &pipeline{
		source:         p.source,
		first:          slices.Clone(p.first),
		onSubscribe:    slices.Clone(p.onSubscribe),
		onRequest:      slices.Clone(p.onRequest),
		stages:         slices.Clone(p.stages),
		writes:         slices.Clone(p.writes),
		interceptors:   slices.Clone(p.interceptors),
		afterTerminate: slices.Clone(p.afterTerminate),
		onCancel:       slices.Clone(p.onCancel),
		finally:        slices.Clone(p.finally),
	}
}

func (p *pipeline) withStage(st stage) *pipeline {
	c := p.clone()
	c.stages = append(c.stages, st)
	return c
}

func (p *pipeline) frame(ctx context.Context, parent *frame) *frame {
	fr := &frame{}
	if parent != nil {
		fr.meta = parent.meta
		fr.interceptors = parent.interceptors
	}
	// downstream writes are visible to upstream ones
	for i := len(p.writes) - 1; i >= 0; i-- {
		fr.meta = p.writes[i](ctx, fr.meta)
	}
	if len(p.interceptors) > 0 {
		fr.interceptors = append(slices.Clip(fr.interceptors), p.interceptors...)
	}
	return fr
}

const (
	runActive int32 = iota
	runTerminated
	runCanceled
)

type boundHook func(ctx context.Context, sig Signal)

// run is the state of one subscription.
type run struct {
	ctx        context.Context
	cancel     context.CancelFunc
	stopParent func() bool
	resolveFn  func(s signal)

	state atomic.Int32

	mu             sync.Mutex
	inflight       int
	pending        *signal
	resolved       bool
	timers         []func() bool
	afterTerminate []boundHook
	onCancel       []func()
	finally        []func(sig Signal)
}

func (p *pipeline) subscribe(ctx context.Context, resolve func(s signal)) *run {
	rctx, cancel := context.WithCancel(ctx)
	r := &run{
		ctx:        rctx,
		cancel:     cancel,
		stopParent: func() bool { return false },
		resolveFn:  resolve,
	}
	// a callback is accounted for the whole subscription phase so that a
	// synchronous termination resolves only once attach has returned
	r.enter()
	defer r.exit()

	bound := r.bind(ctx)
	p.attach(r, p.frame(bound, nil), bound, r.terminate)

	stop := context.AfterFunc(ctx, func() {
		r.cancelRun(context.Cause(ctx))
	})
	r.mu.Lock()
	r.stopParent = stop
	r.mu.Unlock()
	return r
}

// attach runs the subscription phase of p inside r and wires its stages in
// front of downstream.
func (p *pipeline) attach(r *run, fr *frame, ctx context.Context, downstream emitFunc) {
	r.mu.Lock()
	for _, fn := range p.afterTerminate {
		r.afterTerminate = append(r.afterTerminate, func(ctx context.Context, sig Signal) {
			_ = r.call(fr, ctx, sig, fn)
		})
	}
	r.onCancel = append(r.onCancel, p.onCancel...)
	r.finally = append(r.finally, p.finally...)
	r.mu.Unlock()

	emit := p.chain(r, fr, downstream)

	for i := len(p.first) - 1; i >= 0; i-- {
		if err := r.call(fr, ctx, SignalSubscribe, p.first[i]); err != nil {
			emit(ctx, errSignal(err))
			return
		}
	}
	for _, fn := range p.onSubscribe {
		if err := r.call(fr, ctx, SignalSubscribe, fn); err != nil {
			emit(ctx, errSignal(err))
			return
		}
	}
	for _, fn := range p.onRequest {
		err := r.call(fr, ctx, SignalRequest, func(ctx context.Context) { fn(ctx, Unbounded) })
		if err != nil {
			emit(ctx, errSignal(err))
			return
		}
	}
	p.source(r, fr, ctx, emit)
}

func (p *pipeline) chain(r *run, fr *frame, downstream emitFunc) emitFunc {
	next := downstream
	for i := len(p.stages) - 1; i >= 0; i-- {
		st, n := p.stages[i], next
		next = func(ctx context.Context, s signal) {
			if r.canceled() {
				return
			}
			st(r, fr, ctx, s, n)
		}
	}
	return next
}

// bind returns the run's context carrying the lane of laneCtx, or no lane.
func (r *run) bind(laneCtx context.Context) context.Context {
	return reqctx.Rebind(r.ctx, laneCtx)
}

func (r *run) canceled() bool {
	return r.state.Load() == runCanceled
}

// call invokes fn through the interceptor chain of fr. A panic in fn is
// returned as a *routine.RecoveredError after every interceptor has unwound.
func (r *run) call(fr *frame, ctx context.Context, sig Signal, fn func(ctx context.Context)) error {
	if r.canceled() {
		return errCanceled
	}
	r.enter()
	defer r.exit()

	invoke := fn
	for i := len(fr.interceptors) - 1; i >= 0; i-- {
		ic, next := fr.interceptors[i], invoke
		invoke = func(ctx context.Context) {
			ic(ctx, fr.meta, sig, next)
		}
	}
	return routine.Try(func() { invoke(ctx) })
}

func (r *run) enter() {
	r.mu.Lock()
	r.inflight++
	r.mu.Unlock()
}

func (r *run) exit() {
	r.mu.Lock()
	r.inflight--
	ready := r.inflight == 0 && r.pending != nil && !r.resolved
	r.mu.Unlock()
	if ready {
		r.resolve()
	}
}

// settle records the terminal signal; the run resolves once no callback is
// in flight.
func (r *run) settle(s signal) {
	r.mu.Lock()
	if r.pending == nil {
		r.pending = &s
	}
	ready := r.inflight == 0 && !r.resolved
	r.mu.Unlock()
	if ready {
		r.resolve()
	}
}

func (r *run) addTimer(stop func() bool) {
	r.mu.Lock()
	if r.canceled() {
		r.mu.Unlock()
		stop()
		return
	}
	r.timers = append(r.timers, stop)
	r.mu.Unlock()
}

// terminate is the end of the stage chain.
func (r *run) terminate(ctx context.Context, s signal) {
	if !r.state.CompareAndSwap(runActive, runTerminated) {
		return
	}
	r.mu.Lock()
	hooks := r.afterTerminate
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx, terminalSignal(s))
	}
	r.settle(s)
}

func (r *run) cancelRun(cause error) {
	if !r.state.CompareAndSwap(runActive, runCanceled) {
		return
	}
	if cause == nil {
		cause = context.Canceled
	}
	r.cancel()

	r.mu.Lock()
	timers := r.timers
	r.timers = nil
	hooks := r.onCancel
	r.mu.Unlock()

	for _, stop := range timers {
		stop()
	}
	// cancel hooks have no hook point before cancellation takes effect and
	// never run under the interceptor chain
	for _, fn := range hooks {
		routine.RunSafe(fn)
	}
	r.settle(errSignal(cause))
}

func (r *run) resolve() {
	r.mu.Lock()
	if r.resolved {
		r.mu.Unlock()
		return
	}
	r.resolved = true
	s := *r.pending
	finally := r.finally
	stop := r.stopParent
	r.mu.Unlock()

	stop()
	r.cancel()
	sig := terminalSignal(s)
	if r.canceled() {
		sig = SignalCancel
	}
	for _, fn := range finally {
		routine.RunSafe(func() { fn(sig) })
	}
	r.resolveFn(s)
}

func terminalSignal(s signal) Signal {
	if s.kind == SignalNext {
		return SignalComplete
	}
	return s.kind
}
