package retry

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/saltfishpr/resilience/scheduler"
)

// DefaultMaxAttempts is the attempt ceiling of a Retrier when none is set.
const DefaultMaxAttempts = 10

// DefaultBackoff is the backoff of a Retrier when none is set.
func DefaultBackoff() Backoff {
	return WithJitterRate(Exponential(200*time.Millisecond, 10*time.Second), 0.2, nil)
}

type retryOptions struct {
	maxAttempts    int
	backoff        func() Backoff
	shouldRetry    func(err error) bool
	scheduler      scheduler.Scheduler
	logger         zerolog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	budget         *rate.Limiter
}

type RetryOption func(*retryOptions)

func newRetryOptions(options []RetryOption) retryOptions {
	opts := retryOptions{
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		shouldRetry: func(error) bool { return true },
		scheduler:   scheduler.Default(),
		logger:      zerolog.Nop(),
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.meterProvider == nil {
		opts.meterProvider = otel.GetMeterProvider()
	}
	if opts.tracerProvider == nil {
		opts.tracerProvider = otel.GetTracerProvider()
	}
	return opts
}

// WithDefaultMaxAttempts sets the ceiling on the total number of attempts of
// an execution, enforced whatever the backoff allows. Values below 1 are
// treated as 1.
func WithDefaultMaxAttempts(maxAttempts int) RetryOption {
	return func(opts *retryOptions) {
		opts.maxAttempts = max(maxAttempts, 1)
	}
}

// WithBackoff uses b for every execution.
func WithBackoff(b Backoff) RetryOption {
	return func(opts *retryOptions) {
		opts.backoff = func() Backoff { return b }
	}
}

// WithBackoffSupplier calls fn once per execution for the backoff to use.
func WithBackoffSupplier(fn func() Backoff) RetryOption {
	return func(opts *retryOptions) {
		opts.backoff = fn
	}
}

// WithShouldRetryFunc sets which errors Do retries.
func WithShouldRetryFunc(fn func(err error) bool) RetryOption {
	return func(opts *retryOptions) {
		opts.shouldRetry = fn
	}
}

// WithScheduler sets the scheduler delayed attempts run on. Defaults to
// scheduler.Default().
func WithScheduler(s scheduler.Scheduler) RetryOption {
	return func(opts *retryOptions) {
		opts.scheduler = s
	}
}

func WithLogger(l zerolog.Logger) RetryOption {
	return func(opts *retryOptions) {
		opts.logger = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) RetryOption {
	return func(opts *retryOptions) {
		opts.meterProvider = mp
	}
}

func WithTracerProvider(tp trace.TracerProvider) RetryOption {
	return func(opts *retryOptions) {
		opts.tracerProvider = tp
	}
}

// WithRetryBudget limits the rate of retries across all executions of the
// Retrier. A retry denied by the limiter ends the execution as exhausted.
func WithRetryBudget(l *rate.Limiter) RetryOption {
	return func(opts *retryOptions) {
		opts.budget = l
	}
}
