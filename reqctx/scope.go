package reqctx

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Scope is returned by a push and restores the previous Context on Close.
type Scope struct {
	lane   *Lane
	pushed *Context
	prev   *Context
	closed atomic.Bool
}

// Close restores the Context that was current before the matching push. It
// panics with an *IllegalStateError when the scope is closed twice or out of
// LIFO order.
func (s *Scope) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		panic(illegalState("close", s.lane, "scope of %s already closed", s.pushed))
	}
	if !s.lane.current.CompareAndSwap(s.pushed, s.prev) {
		panic(illegalState("close", s.lane, "expected %s to be current, found %s", s.pushed, s.lane.Current()))
	}
}

// Lane returns the lane the scope was pushed on.
func (s *Scope) Lane() *Lane {
	return s.lane
}

// Push makes c current on the lane carried by ctx.
func (c *Context) Push(ctx context.Context) (*Scope, error) {
	l, ok := LaneFrom(ctx)
	if !ok {
		return nil, errors.WithStack(ErrNoLane)
	}
	return l.Push(c)
}

// PushNested is Push with declared reentrancy: any current Context is stacked
// under c.
func (c *Context) PushNested(ctx context.Context) (*Scope, error) {
	l, ok := LaneFrom(ctx)
	if !ok {
		return nil, errors.WithStack(ErrNoLane)
	}
	return l.PushNested(c)
}
