// Package config loads the retry, scheduler and logging configuration.
//
// Sources are applied in order, later ones overriding earlier ones:
// defaults, an optional YAML file (or raw YAML bytes), then environment
// variables prefixed with RESILIENCE_. In variable names a double underscore
// separates levels: RESILIENCE_RETRY__DEFAULT_MAX_ATTEMPTS=5 sets
// retry.default_max_attempts.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "RESILIENCE_"

type Config struct {
	Retry     RetryConfig     `koanf:"retry" yaml:"retry"`
	Scheduler SchedulerConfig `koanf:"scheduler" yaml:"scheduler"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
}

// Load reads the configuration from the YAML file at path, when path is not
// empty, and from the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
	}
	return finish(k)
}

// LoadBytes is Load with the YAML document given as data.
func LoadBytes(data []byte) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, errors.Wrap(err, "failed to parse yaml")
	}
	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	if err := k.Load(envprovider.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// envKey maps RESILIENCE_RETRY__DEFAULT_MAX_ATTEMPTS to
// retry.default_max_attempts.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"retry.default_max_attempts": 10,
		"retry.backoff":              "exponential=200:10000,jitter=0.2",
		"retry.budget.rate":          0.0,
		"retry.budget.burst":         0,

		"scheduler.workers": 4,

		"log.level":  "info",
		"log.format": "json",
	}
	return k.Load(confmap.Provider(defaults, "."), nil)
}
