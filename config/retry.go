package config

import (
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/saltfishpr/resilience/retry"
	"github.com/saltfishpr/resilience/scheduler"
)

type RetryConfig struct {
	DefaultMaxAttempts int          `koanf:"default_max_attempts" yaml:"default_max_attempts" validate:"min=1"`
	Backoff            string       `koanf:"backoff" yaml:"backoff" validate:"required,backoff"`
	Budget             BudgetConfig `koanf:"budget" yaml:"budget"`
}

// BudgetConfig limits retries to Rate per second with bursts of Burst. A
// zero Rate disables the budget.
type BudgetConfig struct {
	Rate  float64 `koanf:"rate" yaml:"rate" validate:"gte=0"`
	Burst int     `koanf:"burst" yaml:"burst" validate:"gte=0,required_with=Rate"`
}

// Options returns the retry options described by c.
func (c *RetryConfig) Options() ([]retry.RetryOption, error) {
	b, err := retry.ParseBackoff(c.Backoff)
	if err != nil {
		return nil, errors.Wrap(err, "retry.backoff")
	}
	opts := []retry.RetryOption{
		retry.WithDefaultMaxAttempts(c.DefaultMaxAttempts),
		retry.WithBackoff(b),
	}
	if c.Budget.Rate > 0 {
		opts = append(opts, retry.WithRetryBudget(rate.NewLimiter(rate.Limit(c.Budget.Rate), c.Budget.Burst)))
	}
	return opts, nil
}

type SchedulerConfig struct {
	Workers int `koanf:"workers" yaml:"workers" validate:"min=1"`
}

// NewPool starts a pool with the configured number of workers.
func (c *SchedulerConfig) NewPool(name string, opts ...scheduler.Option) *scheduler.Pool {
	return scheduler.NewPool(name, c.Workers, opts...)
}
