package propagation

import (
	"context"

	"github.com/saltfishpr/resilience/flow"
	"github.com/saltfishpr/resilience/reqctx"
	"github.com/saltfishpr/resilience/scheduler"
)

type metaKey struct{}

// ContextWrite returns m with rc carried in its metadata. Every callback of
// m runs with rc current on its lane.
func ContextWrite[T any](m flow.Mono[T], rc *reqctx.Context) flow.Mono[T] {
	return m.Intercept(restore).ContextWrite(func(_ context.Context, meta flow.Meta) flow.Meta {
		return meta.Put(metaKey{}, rc)
	})
}

// ContextCapture returns m carrying the request context current on the
// subscribing lane. Nothing is carried when no request context is current
// at subscription time.
func ContextCapture[T any](m flow.Mono[T]) flow.Mono[T] {
	return m.Intercept(restore).ContextWrite(func(ctx context.Context, meta flow.Meta) flow.Meta {
		if rc := reqctx.Current(ctx); rc != nil {
			return meta.Put(metaKey{}, rc)
		}
		return meta
	})
}

// FromMeta returns the request context carried by meta.
func FromMeta(meta flow.Meta) (*reqctx.Context, bool) {
	v, ok := meta.Get(metaKey{})
	if !ok {
		return nil, false
	}
	rc, ok := v.(*reqctx.Context)
	return rc, ok && rc != nil
}

// restore makes the carried request context current on the callback's lane
// for the duration of the callback.
func restore(ctx context.Context, meta flow.Meta, sig flow.Signal, call func(context.Context)) {
	rc, ok := FromMeta(meta)
	lane, hasLane := reqctx.LaneFrom(ctx)
	if !ok || !hasLane || sig == flow.SignalCancel {
		call(ctx)
		return
	}
	prev := lane.Replace(rc)
	defer lane.Replace(prev)
	call(ctx)
}

// Wrap returns fn bound to the request context current on the lane carried
// by ctx. The returned function makes that request context current on the
// lane it is called with, and restores the lane afterwards.
func Wrap(ctx context.Context, fn func(ctx context.Context)) func(ctx context.Context) {
	rc := reqctx.Current(ctx)
	if rc == nil {
		return fn
	}
	return func(ctx context.Context) {
		lane, ok := reqctx.LaneFrom(ctx)
		if !ok {
			fn(ctx)
			return
		}
		prev := lane.Replace(rc)
		defer lane.Replace(prev)
		fn(ctx)
	}
}

// Go schedules fn on s with the request context current on the lane carried
// by ctx. It returns the error of s when the task is rejected.
func Go(ctx context.Context, s scheduler.Scheduler, fn func(ctx context.Context)) error {
	return s.Schedule(Wrap(ctx, fn))
}
