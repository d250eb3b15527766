// Package relayconfig provides a go-simpler.org/env configuration table for
// the relay core, following the teacher's config.C pattern: one struct,
// struct-tag-driven defaults, XDG-rooted data paths.
package relayconfig

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"orly.dev/relaycore/internal/chk"
)

// C holds the subscription core's configuration surface (spec §6) plus the
// ambient settings a runnable relay needs (data dir, listen address,
// log level).
type C struct {
	AppName  string `env:"RELAY_APP_NAME" default:"relaycore"`
	DataDir  string `env:"RELAY_DATA_DIR" usage:"storage location for the event store"`
	Listen   string `env:"RELAY_LISTEN" default:"0.0.0.0" usage:"network listen address"`
	Port     int    `env:"RELAY_PORT" default:"3334" usage:"port to listen on"`
	LogLevel string `env:"RELAY_LOG_LEVEL" default:"info" usage:"trace debug info warn error"`

	// MaxLimit is the coordinator's configured ceiling on REQ limits (spec
	// §4.5/§6/§8 invariant 6): no REQ, regardless of client-requested limit,
	// may ever receive more than MaxLimit historical events.
	MaxLimit int `env:"RELAY_MAX_LIMIT" default:"500" usage:"hard ceiling on REQ result limits"`

	// FlushIntervalSeconds is loaded from the environment but is not passed
	// to the replaceable-event buffer, which always flushes every
	// buffer.FlushInterval (one second); changing it has no effect.
	FlushIntervalSeconds int `env:"RELAY_BUFFER_FLUSH_SECONDS" default:"1"`

	// BufferCapacity is the bound on the replaceable-event buffer's incoming
	// channel (spec §4.4/§5: ~10,000).
	BufferCapacity int `env:"RELAY_BUFFER_CAPACITY" default:"10000"`

	// PaginationAttempts is the per-REQ per-filter safety bound (spec §4.5: 50).
	PaginationAttempts int `env:"RELAY_PAGINATION_ATTEMPTS" default:"50"`
}

// New loads configuration from the environment, applying XDG-rooted defaults
// the same way the teacher's config.New does.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.E(err) {
		return
	}
	if cfg.DataDir == "" || strings.Contains(cfg.DataDir, "~") {
		cfg.DataDir = filepath.Join(xdg.DataHome, cfg.AppName)
	}
	return
}
