package retry

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type verdictKind int

const (
	verdictNoRetry verdictKind = iota
	verdictRetryDefault
	verdictRetryAfter
)

// Verdict is the result of a Decision.
type Verdict struct {
	kind  verdictKind
	delay time.Duration
}

// NoRetry ends the execution with the outcome just decided on.
func NoRetry() Verdict {
	return Verdict{kind: verdictNoRetry}
}

// RetryDefault retries after the delay of the execution's backoff.
func RetryDefault() Verdict {
	return Verdict{kind: verdictRetryDefault}
}

// RetryAfter retries after d instead of the backoff's delay. Stop ends the
// execution as exhausted.
func RetryAfter(d time.Duration) Verdict {
	return Verdict{kind: verdictRetryAfter, delay: d}
}

func (v Verdict) Retry() bool {
	return v.kind != verdictNoRetry
}

// Delay returns the delay chosen by the decision, if any.
func (v Verdict) Delay() (time.Duration, bool) {
	return v.delay, v.kind == verdictRetryAfter
}

func (v Verdict) String() string {
	switch v.kind {
	case verdictRetryDefault:
		return "retry"
	case verdictRetryAfter:
		if v.delay == Stop {
			return "retry after stop"
		}
		return "retry after " + v.delay.String()
	default:
		return "no retry"
	}
}

// Decision decides whether a completed attempt is retried. It may be called
// many times for the same execution and must only inspect the outcome.
type Decision[T any] interface {
	Decide(attempt int, out Outcome[T]) Verdict
}

type DecisionFunc[T any] func(attempt int, out Outcome[T]) Verdict

func (f DecisionFunc[T]) Decide(attempt int, out Outcome[T]) Verdict {
	return f(attempt, out)
}

// OnError retries every failed attempt whose error is not marked with
// NonRetryable.
func OnError[T any]() Decision[T] {
	return OnErrorIf[T](func(error) bool { return true })
}

// OnErrorIf retries the failed attempts whose error satisfies retryable and
// is not marked with NonRetryable.
func OnErrorIf[T any](retryable func(err error) bool) Decision[T] {
	return DecisionFunc[T](func(_ int, out Outcome[T]) Verdict {
		if out.Err == nil || IsNonRetryable(out.Err) || !retryable(out.Err) {
			return NoRetry()
		}
		return RetryDefault()
	})
}

// Never never retries.
func Never[T any]() Decision[T] {
	return DecisionFunc[T](func(int, Outcome[T]) Verdict { return NoRetry() })
}

// NonRetryableError marks an error that must not be retried.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return "non-retryable: " + e.Err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so that OnError and OnErrorIf stop on it.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Outcome is the record of one attempt.
type Outcome[T any] struct {
	Attempt int
	Value   T
	Err     error
	Start   time.Time
	End     time.Time
}

func (o Outcome[T]) Failed() bool {
	return o.Err != nil
}

func (o Outcome[T]) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// State is the state of an Execution.
type State int32

const (
	StateAttempting State = iota
	StateAwaitingBackoff
	StateSucceeded
	StateExhausted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateAwaitingBackoff:
		return "awaiting_backoff"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateAborted:
		return "aborted"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}
