// Package logx provides the structured, leveled logging used throughout
// relaycore: a single global zerolog.Logger configured once at startup and
// handed out to components as named sub-loggers.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// L is the global logger instance. Components should prefer L.With() to tag
// their output rather than constructing a fresh logger.
var L zerolog.Logger

func init() {
	L = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Config controls Init.
type Config struct {
	Level      string // trace, debug, info, warn, error
	JSONOutput bool
	Output     io.Writer
}

// Init (re)configures the global logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSONOutput {
		L = zerolog.New(out).With().Timestamp().Logger()
	} else {
		L = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with a component name, the pattern
// used everywhere in relaycore to scope log output to a subsystem.
func Component(name string) zerolog.Logger {
	return L.With().Str("component", name).Logger()
}
