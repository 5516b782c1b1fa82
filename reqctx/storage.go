package reqctx

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Storage is the registry of lanes. Each lane holds at most one current
// Context; lanes never share a slot.
type Storage struct {
	mu    sync.RWMutex
	lanes map[uint64]*Lane
	seq   atomic.Uint64
}

func NewStorage() *Storage {
	return &Storage{
		lanes: make(map[uint64]*Lane),
	}
}

var defaultStorage = NewStorage()

// Default returns the process-wide storage. It starts empty and needs no
// teardown.
func Default() *Storage {
	return defaultStorage
}

// NewLane registers a new lane. The caller owns it and must Release it when
// the execution unit it represents goes away.
func (s *Storage) NewLane(name string) *Lane {
	l := &Lane{
		id:      s.seq.Add(1),
		name:    name,
		storage: s,
	}
	s.mu.Lock()
	s.lanes[l.id] = l
	s.mu.Unlock()
	return l
}

// Release unregisters l. Releasing a lane that still has a current Context
// is a leak: the lane is unregistered anyway and an *IllegalStateError is
// returned.
func (s *Storage) Release(l *Lane) error {
	s.mu.Lock()
	delete(s.lanes, l.id)
	s.mu.Unlock()

	if c := l.current.Swap(nil); c != nil {
		return illegalState("release", l, "lane still holds %s", c)
	}
	return nil
}

// Holders returns the registered lanes whose current Context is c.
func (s *Storage) Holders(c *Context) []*Lane {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holders []*Lane
	for _, l := range s.lanes {
		if l.Current() == c {
			holders = append(holders, l)
		}
	}
	return holders
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lanes)
}

// Lane is one execution unit: a worker goroutine, or the goroutine running a
// single task.
type Lane struct {
	id      uint64
	name    string
	storage *Storage
	current atomic.Pointer[Context]
}

func (l *Lane) ID() uint64 { return l.id }

func (l *Lane) Name() string { return l.name }

func (l *Lane) Storage() *Storage { return l.storage }

func (l *Lane) String() string {
	if l == nil {
		return "<none>"
	}
	return l.name + "-" + strconv.FormatUint(l.id, 10)
}

// Current returns the Context current on l, or nil.
func (l *Lane) Current() *Context {
	return l.current.Load()
}

// Replace atomically makes c current on l and returns the previous Context.
// The caller is responsible for restoring the returned value.
func (l *Lane) Replace(c *Context) *Context {
	return l.current.Swap(c)
}

// Push makes c current on l. It is refused when another Context is current
// and c was not derived from it.
func (l *Lane) Push(c *Context) (*Scope, error) {
	return l.push(c, false)
}

// PushNested makes c current on l regardless of what is current.
func (l *Lane) PushNested(c *Context) (*Scope, error) {
	return l.push(c, true)
}

func (l *Lane) push(c *Context, nested bool) (*Scope, error) {
	prev := l.current.Load()
	if !nested && prev != nil && prev != c && !c.IsDescendantOf(prev) {
		return nil, illegalState("push", l, "%s is current, cannot push unrelated %s", prev, c)
	}
	if !l.current.CompareAndSwap(prev, c) {
		return nil, illegalState("push", l, "concurrent modification of the lane")
	}
	return &Scope{lane: l, pushed: c, prev: prev}, nil
}

type laneKey struct{}

// WithLane returns a copy of ctx that carries l.
func WithLane(ctx context.Context, l *Lane) context.Context {
	return context.WithValue(ctx, laneKey{}, l)
}

func LaneFrom(ctx context.Context) (*Lane, bool) {
	l, ok := ctx.Value(laneKey{}).(*Lane)
	return l, ok && l != nil
}

// Rebind returns base carrying the lane found in from, or no lane at all when
// from carries none. A lane inherited by base is never kept.
func Rebind(base, from context.Context) context.Context {
	l, _ := LaneFrom(from)
	return WithLane(base, l)
}

// Current returns the Context current on the lane carried by ctx, or nil.
func Current(ctx context.Context) *Context {
	if l, ok := LaneFrom(ctx); ok {
		return l.Current()
	}
	return nil
}
