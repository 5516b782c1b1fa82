package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/saltfishpr/resilience/reqctx"
)

// ErrClosed is returned when a task is scheduled on a closed scheduler.
var ErrClosed = errors.New("scheduler: closed")

type Task func(ctx context.Context)

// Scheduler is the abstraction pipelines and retry executions use to hop
// lanes and to wait without blocking one.
type Scheduler interface {
	// Schedule runs task on some lane of the scheduler, or returns an error
	// when the task is rejected. Implementations may run task before
	// Schedule returns.
	Schedule(task Task) error
	// ScheduleAfter runs task after d. If the scheduler rejects the task,
	// rejected is called with the error unless it is nil. The returned
	// function cancels the task if it has not started yet and reports whether
	// it did so.
	ScheduleAfter(d time.Duration, task Task, rejected func(err error)) (cancel func() bool)
}

type options struct {
	storage *reqctx.Storage
	logger  zerolog.Logger
	base    context.Context
}

type Option func(*options)

// WithStorage sets the storage lanes are registered in. Defaults to
// reqctx.Default().
func WithStorage(s *reqctx.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBaseContext sets the context tasks' contexts derive from.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		o.base = ctx
	}
}

func newOptions(opts []Option) options {
	o := options{
		storage: reqctx.Default(),
		logger:  zerolog.Nop(),
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func scheduleAfter(s Scheduler, d time.Duration, task Task, rejected func(err error)) func() bool {
	submit := func() {
		if err := s.Schedule(task); err != nil && rejected != nil {
			rejected(err)
		}
	}
	if d <= 0 {
		submit()
		return func() bool { return false }
	}
	return time.AfterFunc(d, submit).Stop
}
