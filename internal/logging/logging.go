// Package logging builds the zerolog logger used by the savex CLI and
// providers. The savex core never logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hengadev/savex/internal/config"
)

// New returns a logger writing to out at the configured level. Format
// "console" gives human readable lines, "json" one object per line.
func New(out io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var w io.Writer
	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		w = out
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "savex").Logger(), nil
}

// Init builds a stderr logger and installs it as the global zerolog logger.
func Init(cfg config.LogConfig) (zerolog.Logger, error) {
	logger, err := New(os.Stderr, cfg)
	if err != nil {
		return logger, err
	}
	log.Logger = logger
	return logger, nil
}
