// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller,omitempty"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose,omitempty"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// InitLogger replaces log.Logger according to cfg. Text format goes to stderr
// through a console writer, anything else is written as JSON. A log file, when
// set, receives an uncolored copy and is rotated by size.
func InitLogger(cfg Config) error {
	level := cfg.Level
	if cfg.Verbose && level != "trace" {
		level = "debug"
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	var w io.Writer = os.Stderr
	if cfg.Format == "text" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if cfg.File != "" {
		w = io.MultiWriter(w, zerolog.ConsoleWriter{
			NoColor: true,
			Out: &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			},
		})
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.WithCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()
	zerolog.SetGlobalLevel(lvl)
	return nil
}
