package retry

import (
	"math"
	"math/rand"
	"time"
)

// Stop is the delay returned by a Backoff that allows no further attempt.
// It is never a valid delay: no jitter applied to a real delay can reach it.
const Stop time.Duration = math.MinInt64

// Backoff maps the number of attempts made so far to the delay before the
// next one, or Stop.
type Backoff interface {
	// attempt starts from 1
	NextDelay(attempt int) time.Duration
}

type BackoffFunc func(attempt int) time.Duration

func (f BackoffFunc) NextDelay(attempt int) time.Duration {
	return f(attempt)
}

// Rand is the random source of the jittering backoffs. *rand.Rand
// implements it.
type Rand interface {
	Int63n(n int64) int64
	Float64() float64
}

// RandSupplier returns the random source a jittering backoff draws from on
// every call.
type RandSupplier func() Rand

type globalRand struct{}

func (globalRand) Int63n(n int64) int64 { return rand.Int63n(n) }
func (globalRand) Float64() float64     { return rand.Float64() }

// DefaultRand is the RandSupplier used when none is given. The returned
// source is safe for concurrent use.
func DefaultRand() Rand {
	return globalRand{}
}

type withoutDelay struct{}

func WithoutDelay() Backoff {
	return withoutDelay{}
}

func (withoutDelay) NextDelay(int) time.Duration {
	return 0
}

type fixedBackoff time.Duration

func Fixed(d time.Duration) Backoff {
	if d < 0 {
		panic("retry: negative fixed delay")
	}
	return fixedBackoff(d)
}

func (f fixedBackoff) NextDelay(int) time.Duration {
	return time.Duration(f)
}

type linearBackoff time.Duration

// Linear returns a Backoff whose delay grows by d with every attempt.
func Linear(d time.Duration) Backoff {
	if d < 0 {
		panic("retry: negative linear delay")
	}
	return linearBackoff(d)
}

func (l linearBackoff) NextDelay(attempt int) time.Duration {
	return saturate(float64(l)*float64(attempt), math.MaxInt64)
}

// DefaultMultiplier is the growth factor of Exponential.
const DefaultMultiplier = 2.0

type exponentialBackoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

// Exponential returns ExponentialMultiplier(initial, max, DefaultMultiplier).
func Exponential(initial, max time.Duration) Backoff {
	return ExponentialMultiplier(initial, max, DefaultMultiplier)
}

// ExponentialMultiplier returns a Backoff whose delay is
// min(max, initial*multiplier^(attempt-1)), truncated to whole milliseconds.
func ExponentialMultiplier(initial, max time.Duration, multiplier float64) Backoff {
	switch {
	case initial < 0:
		panic("retry: negative initial delay")
	case max < initial:
		panic("retry: max delay less than initial delay")
	case !(multiplier > 1):
		panic("retry: multiplier must be greater than 1")
	}
	return &exponentialBackoff{
		initial:    initial,
		max:        max,
		multiplier: multiplier,
	}
}

func (e *exponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.initial) * math.Pow(e.multiplier, float64(attempt-1))
	return saturate(d, e.max).Truncate(time.Millisecond)
}

type fibonacciBackoff struct {
	initial time.Duration
	max     time.Duration
}

// Fibonacci returns a Backoff whose delay is initial times the attempt-th
// Fibonacci number, capped at max.
func Fibonacci(initial, max time.Duration) Backoff {
	switch {
	case initial < 0:
		panic("retry: negative initial delay")
	case max < initial:
		panic("retry: max delay less than initial delay")
	}
	return &fibonacciBackoff{initial: initial, max: max}
}

func (f *fibonacciBackoff) NextDelay(attempt int) time.Duration {
	prev, cur := 0.0, 1.0
	for i := 1; i < attempt; i++ {
		prev, cur = cur, prev+cur
		if float64(f.initial)*cur >= float64(f.max) {
			return f.max
		}
	}
	return saturate(float64(f.initial)*cur, f.max)
}

type randomBackoff struct {
	min  time.Duration
	max  time.Duration
	rand RandSupplier
}

// Random returns a Backoff whose delay is drawn uniformly from [min, max] at
// millisecond granularity.
func Random(min, max time.Duration, rand RandSupplier) Backoff {
	switch {
	case min < 0:
		panic("retry: negative minimum delay")
	case max < min:
		panic("retry: max delay less than min delay")
	}
	if rand == nil {
		rand = DefaultRand
	}
	return &randomBackoff{min: min, max: max, rand: rand}
}

func (r *randomBackoff) NextDelay(int) time.Duration {
	return uniform(r.rand(), r.min, r.max)
}

type jitterBackoff struct {
	backoff  Backoff
	minDelta time.Duration
	maxDelta time.Duration
	rand     RandSupplier
}

// WithJitter returns b with a delta drawn uniformly from [minDelta, maxDelta]
// (millisecond granularity) added to every delay. The result is not clamped:
// a negative minDelta can make the delay negative. Stop passes through.
func WithJitter(b Backoff, minDelta, maxDelta time.Duration, rand RandSupplier) Backoff {
	if maxDelta < minDelta {
		panic("retry: max jitter less than min jitter")
	}
	if rand == nil {
		rand = DefaultRand
	}
	return &jitterBackoff{backoff: b, minDelta: minDelta, maxDelta: maxDelta, rand: rand}
}

func (j *jitterBackoff) NextDelay(attempt int) time.Duration {
	d := j.backoff.NextDelay(attempt)
	if d == Stop {
		return Stop
	}
	return d + uniform(j.rand(), j.minDelta, j.maxDelta)
}

type jitterRateBackoff struct {
	backoff Backoff
	rate    float64
	rand    RandSupplier
}

// WithJitterRate returns b with every delay d moved by a random amount in
// [-rate*d, rate*d].
func WithJitterRate(b Backoff, rate float64, rand RandSupplier) Backoff {
	if rate < 0 || rate > 1 {
		panic("retry: jitter rate must be within [0, 1]")
	}
	if rand == nil {
		rand = DefaultRand
	}
	return &jitterRateBackoff{backoff: b, rate: rate, rand: rand}
}

func (j *jitterRateBackoff) NextDelay(attempt int) time.Duration {
	d := j.backoff.NextDelay(attempt)
	if d == Stop || d == 0 {
		return d
	}
	factor := 1 + j.rate*(2*j.rand().Float64()-1)
	return time.Duration(float64(d) * factor)
}

type maxAttemptsBackoff struct {
	backoff     Backoff
	maxAttempts int
}

// WithMaxAttempts returns b limited to maxAttempts attempts in total: once
// attempt reaches maxAttempts the delay is Stop. WithMaxAttempts(b, 5) allows
// exactly five attempts, NextDelay(4) comes from b and NextDelay(5) is Stop.
func WithMaxAttempts(b Backoff, maxAttempts int) Backoff {
	if maxAttempts < 1 {
		panic("retry: max attempts must be at least 1")
	}
	return &maxAttemptsBackoff{backoff: b, maxAttempts: maxAttempts}
}

func (m *maxAttemptsBackoff) NextDelay(attempt int) time.Duration {
	if attempt >= m.maxAttempts {
		return Stop
	}
	return m.backoff.NextDelay(attempt)
}

func saturate(d float64, max time.Duration) time.Duration {
	if math.IsNaN(d) || d >= float64(max) {
		return max
	}
	return time.Duration(d)
}

func uniform(r Rand, min, max time.Duration) time.Duration {
	lo, hi := min.Milliseconds(), max.Milliseconds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+r.Int63n(hi-lo+1)) * time.Millisecond
}
