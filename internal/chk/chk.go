// Package chk provides the error-check-and-log idiom used everywhere in
// relaycore:
//
//	if err = f(); chk.E(err) {
//		return
//	}
//
// E logs at error level and reports whether err is non-nil; T logs at trace
// level (for errors that are expected/benign but still worth recording) and
// reports the same. Both are safe to call with a nil error.
package chk

import (
	"github.com/rs/zerolog"

	"orly.dev/relaycore/internal/logx"
)

var log = logx.Component("chk")

// E logs err at error level (with caller-provided context already inside the
// error's message, per Go convention) and returns true if err != nil.
func E(err error) bool {
	if err == nil {
		return false
	}
	logEvent(log.Error(), err)
	return true
}

// T logs err at trace level and returns true if err != nil. Use for errors
// that are expected in the course of normal operation (e.g. a missing
// connection on a best-effort cleanup path).
func T(err error) bool {
	if err == nil {
		return false
	}
	logEvent(log.Trace(), err)
	return true
}

func logEvent(ev *zerolog.Event, err error) {
	ev.Err(err).Msg("error")
}
