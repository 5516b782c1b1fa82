package config

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json console"`
}

// NewLogger returns a logger writing to w at the configured level and format.
func (c *LogConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), errors.Wrap(err, "log.level")
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
