// Package relayerr defines the core's error taxonomy: ConnectionNotFound,
// Internal, Notice, and Parse, per spec §7. Propagation policy is enforced by
// callers (registry, coordinator, buffer), not by this package; this package
// only names the categories so callers can classify and the taxonomy stays
// consistent across packages.
package relayerr

import "errors"

// ErrConnectionNotFound indicates an operation targeted a registry entry that
// no longer exists. Non-fatal: callers should swallow or log it.
var ErrConnectionNotFound = errors.New("relaycore: connection not found")

// ErrInternal wraps an unexpected failure (store, signer, closed channel)
// that must be surfaced to the caller, typically becoming OK(false, reason).
var ErrInternal = errors.New("relaycore: internal error")

// ErrNotice marks a user-visible, recoverable per-request failure that
// should be delivered to the client as a NOTICE rather than silently
// swallowed or treated as a hard internal failure.
var ErrNotice = errors.New("relaycore: notice")

// ErrParse indicates a boundary-level parse failure; no state was mutated.
var ErrParse = errors.New("relaycore: parse error")

// Internal wraps err as an internal error, preserving it for errors.Is/As.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{tag: ErrInternal, cause: err}
}

// Notice builds a client-visible NOTICE-grade error from reason.
func Notice(reason string) error {
	return &wrapped{tag: ErrNotice, cause: errors.New(reason)}
}

// Parse wraps err as a boundary parse failure.
func Parse(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{tag: ErrParse, cause: err}
}

type wrapped struct {
	tag   error
	cause error
}

func (w *wrapped) Error() string { return w.tag.Error() + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.tag, w.cause} }
