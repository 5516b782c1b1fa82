package retry

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidBackoffSpec is returned by ParseBackoff for a malformed spec.
var ErrInvalidBackoffSpec = errors.New("retry: invalid backoff spec")

// ParseBackoff builds a Backoff from a comma-separated textual spec. Delays
// are in milliseconds. Exactly one base backoff is allowed:
//
//	exponential=initial:max   exponential backoff (defaults 200:10000)
//	fibonacci=initial:max     fibonacci backoff (defaults 200:10000)
//	fixed=delay               fixed backoff
//	linear=delay              linear backoff
//	random=min:max            random backoff
//
// followed by any of the decorators:
//
//	multiplier=m              multiplier of exponential (default 2.0)
//	jitter=rate               jitter rate in [0, 1]
//	jitter=min:max            jitter delta range
//	maxAttempts=n             total attempt ceiling
//
// For example "exponential=10:1000,multiplier=3,jitter=-50:50,maxAttempts=5".
func ParseBackoff(spec string) (Backoff, error) {
	var p backoffSpec
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if err := p.set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, errors.Wrapf(err, "%q", spec)
		}
	}
	return p.build()
}

type backoffSpec struct {
	base       string
	a, b       time.Duration
	multiplier float64

	jitter               bool
	jitterRate           float64
	jitterMin, jitterMax time.Duration
	jitterRange          bool
	maxAttempts          int
}

func (p *backoffSpec) set(key, value string) error {
	switch key {
	case "exponential", "fibonacci", "random":
		if err := p.setBase(key); err != nil {
			return err
		}
		if value == "" {
			if key == "random" {
				return errors.Wrap(ErrInvalidBackoffSpec, "random needs min:max")
			}
			p.a, p.b = 200*time.Millisecond, 10*time.Second
			return nil
		}
		var err error
		p.a, p.b, err = parseRange(value)
		return err
	case "fixed", "linear":
		if err := p.setBase(key); err != nil {
			return err
		}
		var err error
		p.a, err = parseMillis(value)
		return err
	case "multiplier":
		m, err := strconv.ParseFloat(value, 64)
		if err != nil || !(m > 1) {
			return errors.Wrapf(ErrInvalidBackoffSpec, "multiplier %q", value)
		}
		p.multiplier = m
		return nil
	case "jitter":
		p.jitter = true
		if strings.Contains(value, ":") {
			p.jitterRange = true
			var err error
			p.jitterMin, p.jitterMax, err = parseRange(value)
			return err
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate < 0 || rate > 1 {
			return errors.Wrapf(ErrInvalidBackoffSpec, "jitter rate %q", value)
		}
		p.jitterRate = rate
		return nil
	case "maxAttempts":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return errors.Wrapf(ErrInvalidBackoffSpec, "maxAttempts %q", value)
		}
		p.maxAttempts = n
		return nil
	default:
		return errors.Wrapf(ErrInvalidBackoffSpec, "unknown key %q", key)
	}
}

func (p *backoffSpec) setBase(key string) error {
	if p.base != "" {
		return errors.Wrapf(ErrInvalidBackoffSpec, "%s conflicts with %s", key, p.base)
	}
	p.base = key
	return nil
}

func (p *backoffSpec) build() (Backoff, error) {
	if p.multiplier != 0 && p.base != "exponential" {
		return nil, errors.Wrap(ErrInvalidBackoffSpec, "multiplier needs exponential")
	}
	if p.a < 0 {
		return nil, errors.Wrapf(ErrInvalidBackoffSpec, "%s negative delay", p.base)
	}
	if p.base != "fixed" && p.base != "linear" && p.base != "" && p.b < p.a {
		return nil, errors.Wrapf(ErrInvalidBackoffSpec, "%s max less than min", p.base)
	}
	if p.jitterRange && p.jitterMax < p.jitterMin {
		return nil, errors.Wrap(ErrInvalidBackoffSpec, "jitter max less than min")
	}

	var b Backoff
	switch p.base {
	case "exponential":
		m := p.multiplier
		if m == 0 {
			m = DefaultMultiplier
		}
		b = ExponentialMultiplier(p.a, p.b, m)
	case "fibonacci":
		b = Fibonacci(p.a, p.b)
	case "random":
		b = Random(p.a, p.b, nil)
	case "fixed":
		b = Fixed(p.a)
	case "linear":
		b = Linear(p.a)
	default:
		b = Exponential(200*time.Millisecond, 10*time.Second)
	}
	switch {
	case p.jitterRange:
		b = WithJitter(b, p.jitterMin, p.jitterMax, nil)
	case p.jitter:
		b = WithJitterRate(b, p.jitterRate, nil)
	}
	if p.maxAttempts > 0 {
		b = WithMaxAttempts(b, p.maxAttempts)
	}
	return b, nil
}

func parseRange(value string) (time.Duration, time.Duration, error) {
	lo, hi, ok := strings.Cut(value, ":")
	if !ok {
		return 0, 0, errors.Wrapf(ErrInvalidBackoffSpec, "range %q", value)
	}
	a, err := parseSignedMillis(lo)
	if err != nil {
		return 0, 0, err
	}
	b, err := parseSignedMillis(hi)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseMillis(value string) (time.Duration, error) {
	d, err := parseSignedMillis(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.Wrapf(ErrInvalidBackoffSpec, "negative delay %q", value)
	}
	return d, nil
}

func parseSignedMillis(value string) (time.Duration, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidBackoffSpec, "delay %q", value)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
