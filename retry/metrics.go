package retry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/saltfishpr/resilience/retry"

	metricAttempts     = "retry.attempts"
	metricExecutions   = "retry.executions"
	metricBackoffDelay = "retry.backoff.delay"

	attrOutcome   = "outcome"
	attrState     = "state"
	attrAttempt   = "retry.attempt"
	attrRequestID = "request.id"
)

type metrics struct {
	attempts   metric.Int64Counter
	executions metric.Int64Counter
	delay      metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	attempts, err := meter.Int64Counter(metricAttempts,
		metric.WithDescription("Number of attempts executed"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}
	executions, err := meter.Int64Counter(metricExecutions,
		metric.WithDescription("Number of executions finished, by final state"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}
	delay, err := meter.Float64Histogram(metricBackoffDelay,
		metric.WithDescription("Delay waited before a retry"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{attempts: attempts, executions: executions, delay: delay}, nil
}

func (m *metrics) recordAttempt(ctx context.Context, failed bool) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

func (m *metrics) recordExecution(ctx context.Context, s State) {
	m.executions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrState, s.String())))
}

func (m *metrics) recordDelay(ctx context.Context, d time.Duration) {
	m.delay.Record(ctx, float64(d)/float64(time.Millisecond))
}
