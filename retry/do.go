package retry

import (
	"context"
	"time"

	"github.com/saltfishpr/resilience/flow"
	"github.com/saltfishpr/resilience/reqctx"
)

// Do calls f until it succeeds, a retry is refused, or the attempts are
// exhausted. Unless overridden it makes at most 3 attempts, 100ms apart, and
// retries every error not marked with NonRetryable.
//
// f runs with a per-attempt request context derived from the one current on
// the lane of ctx, or from a new one when none is current.
func Do[T any](ctx context.Context, f func(ctx context.Context) (T, error), options ...RetryOption) (T, error) {
	opts := append([]RetryOption{
		WithDefaultMaxAttempts(3),
		WithBackoff(Fixed(100 * time.Millisecond)),
	}, options...)
	o := newRetryOptions(opts)

	rc := reqctx.Current(ctx)
	if rc == nil {
		rc = reqctx.New(reqctx.Operation{Method: "CALL"})
	}
	r := New(OnErrorIf[T](o.shouldRetry), opts...)
	return r.Do(ctx, rc, func(context.Context) flow.Mono[T] {
		return flow.FromFunc(f)
	})
}
