package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltfishpr/resilience/retry"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Retry.DefaultMaxAttempts)
	assert.Equal(t, "exponential=200:10000,jitter=0.2", cfg.Retry.Backoff)
	assert.Zero(t, cfg.Retry.Budget.Rate)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry:
  default_max_attempts: 5
  backoff: fixed=100,maxAttempts=3
  budget:
    rate: 10
    burst: 20
scheduler:
  workers: 2
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.DefaultMaxAttempts)
	assert.Equal(t, "fixed=100,maxAttempts=3", cfg.Retry.Backoff)
	assert.InDelta(t, 10.0, cfg.Retry.Budget.Rate, 1e-9)
	assert.Equal(t, 20, cfg.Retry.Budget.Burst)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RESILIENCE_RETRY__DEFAULT_MAX_ATTEMPTS", "7")
	t.Setenv("RESILIENCE_LOG__LEVEL", "warn")

	cfg, err := LoadBytes([]byte("retry:\n  default_max_attempts: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.DefaultMaxAttempts)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadBytes_Invalid(t *testing.T) {
	_, err := LoadBytes([]byte(`
retry:
  default_max_attempts: 0
  backoff: exponential=100:10
log:
  level: loud
`))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Contains(t, fields, "retry.default_max_attempts")
	assert.Contains(t, fields, "retry.backoff")
	assert.Contains(t, fields, "log.level")
	assert.Contains(t, err.Error(), "retry.default_max_attempts must be at least 1")
}

func TestLoadBytes_Malformed(t *testing.T) {
	_, err := LoadBytes([]byte("retry: [1, 2"))
	assert.Error(t, err)
}

func TestRetryConfig_Options(t *testing.T) {
	c := RetryConfig{DefaultMaxAttempts: 3, Backoff: "fixed=1", Budget: BudgetConfig{Rate: 100, Burst: 10}}
	opts, err := c.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	calls := 0
	_, err = retry.Do(t.Context(), func(ctx context.Context) (int, error) {
		calls++
		return 0, assert.AnError
	}, opts...)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)

	c.Backoff = "bogus"
	_, err = c.Options()
	assert.ErrorIs(t, err, retry.ErrInvalidBackoffSpec)
}

func TestSchedulerConfig_NewPool(t *testing.T) {
	c := SchedulerConfig{Workers: 2}
	p := c.NewPool("config")
	defer p.Close()
	assert.Equal(t, "config", p.Name())
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := (&LogConfig{Level: "warn", Format: "json"}).NewLogger(&buf)
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Dur("delay", time.Second).Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	logger, err = (&LogConfig{Level: "debug", Format: "console"}).NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), "{")

	_, err = (&LogConfig{Level: "loud"}).NewLogger(&buf)
	assert.Error(t, err)
}
