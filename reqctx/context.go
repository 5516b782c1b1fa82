package reqctx

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Operation describes the logical request a Context belongs to.
type Operation struct {
	Method string
	Path   string
}

func (o Operation) String() string {
	return o.Method + " " + o.Path
}

// Attr is a single attribute of a Context.
type Attr struct {
	Key   string
	Value any
}

// Context is the request-scoped handle read by code executing on behalf of one
// logical request. The identity, operation and headers are fixed at creation;
// only the attribute map is mutable.
type Context struct {
	id      uuid.UUID
	op      Operation
	header  map[string]string
	parent  *Context
	created time.Time

	mu    sync.RWMutex
	keys  []string
	attrs map[string]any
}

type Option func(*Context)

// WithID overrides the generated correlation ID.
func WithID(id uuid.UUID) Option {
	return func(c *Context) {
		c.id = id
	}
}

func WithHeader(key, value string) Option {
	return func(c *Context) {
		c.header[key] = value
	}
}

// New creates the root Context of a new logical request.
func New(op Operation, opts ...Option) *Context {
	c := &Context{
		id:      uuid.New(),
		op:      op,
		header:  make(map[string]string),
		created: time.Now(),
		attrs:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Derive returns a child view of c for a single attempt. The child shares the
// correlation ID, operation and headers with c and starts with an empty
// attribute map; attribute lookups fall back to the parent chain.
func (c *Context) Derive() *Context {
	return &Context{
		id:      c.id,
		op:      c.op,
		header:  c.header,
		parent:  c,
		created: time.Now(),
		attrs:   make(map[string]any),
	}
}

func (c *Context) ID() uuid.UUID        { return c.id }
func (c *Context) Operation() Operation { return c.op }
func (c *Context) Parent() *Context     { return c.parent }
func (c *Context) Created() time.Time   { return c.created }

func (c *Context) Root() *Context {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// IsDescendantOf reports whether c was derived, directly or not, from other.
func (c *Context) IsDescendantOf(other *Context) bool {
	for p := c.parent; p != nil; p = p.parent {
		if p == other {
			return true
		}
	}
	return false
}

func (c *Context) Header(key string) string {
	return c.header[key]
}

// Attr returns the attribute stored under key, looking through the parent
// chain when c itself does not hold it.
func (c *Context) Attr(key string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.attrs[key]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

func (c *Context) SetAttr(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.attrs[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.attrs[key] = value
}

// Attrs returns the attributes set on c itself, in insertion order.
func (c *Context) Attrs() []Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attrs := make([]Attr, 0, len(c.keys))
	for _, k := range c.keys {
		attrs = append(attrs, Attr{Key: k, Value: c.attrs[k]})
	}
	return attrs
}

func (c *Context) depth() int {
	d := 0
	for p := c.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

func (c *Context) String() string {
	if c == nil {
		return "<nil>"
	}
	if d := c.depth(); d > 0 {
		return fmt.Sprintf("[%s %s]#%d", c.id, c.op, d)
	}
	return fmt.Sprintf("[%s %s]", c.id, c.op)
}

func (c *Context) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", c.id.String()).
		Str("method", c.op.Method).
		Str("path", c.op.Path).
		Int("depth", c.depth())
}
