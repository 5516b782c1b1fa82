package flow

import (
	"context"
	"math"
)

// Signal identifies the hook point a callback is invoked for.
type Signal int

const (
	SignalSubscribe Signal = iota + 1
	SignalRequest
	SignalNext
	SignalError
	SignalComplete
	SignalCancel
)

func (s Signal) String() string {
	switch s {
	case SignalSubscribe:
		return "subscribe"
	case SignalRequest:
		return "request"
	case SignalNext:
		return "next"
	case SignalError:
		return "error"
	case SignalComplete:
		return "complete"
	case SignalCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Unbounded is the demand requested from every source.
const Unbounded int64 = math.MaxInt64

// Meta is the immutable metadata carried by a subscription. It is built at
// subscription time from the ContextWrite functions of the pipeline.
type Meta struct {
	entries map[any]any
}

// Put returns a copy of m with key set to value.
func (m Meta) Put(key, value any) Meta {
	entries := make(map[any]any, len(m.entries)+1)
	for k, v := range m.entries {
		entries[k] = v
	}
	entries[key] = value
	return Meta{entries: entries}
}

func (m Meta) Get(key any) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

func (m Meta) Len() int {
	return len(m.entries)
}

// Interceptor wraps every callback invocation of a subscription. It must
// call call exactly once, with ctx or a context derived from it.
type Interceptor func(ctx context.Context, meta Meta, sig Signal, call func(ctx context.Context))

type signal struct {
	kind  Signal
	value any
	err   error
}

func errSignal(err error) signal {
	return signal{kind: SignalError, err: err}
}

type emitFunc func(ctx context.Context, s signal)

func as[T any](v any) T {
	t, _ := v.(T)
	return t
}
