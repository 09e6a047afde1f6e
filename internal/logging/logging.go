package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

// New returns a logger writing to out (stderr when nil) at the configured
// level. Format "json" emits one JSON object per line; anything else uses
// the human-readable console writer. Unknown levels fall back to info.
func New(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop discards everything. Used as the default in packages that accept an
// optional logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
