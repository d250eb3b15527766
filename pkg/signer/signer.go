// Package signer defines the Signer collaborator contract (spec §1/§4.3/§9):
// the external boundary the coordinator hands unsigned events to when
// accepting a SaveUnsigned StoreCommand, generalizing the Pub/Sign/Verify
// shape of the teacher's pkg/interfaces/signer.I (reconstructed from its
// call sites in pkg/encoders/event/signatures.go, since the interface file
// itself was not retrieved — see DESIGN.md) to the asynchronous, one-shot
// completion contract this core's buffer/coordinator pipeline requires.
package signer

import (
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
)

// Result is the one-shot outcome of a signing request: exactly one of Event
// or Err is populated, never both (spec §4.3 "one-shot completion
// semantics").
type Result struct {
	Event *event.E
	Err   error
}

// I is the Signer interface. Implementations must be safe for concurrent
// use by multiple callers.
type I interface {
	// Pub returns the signer's public key (hex-encoded).
	Pub() string

	// Sign requests an asynchronous signature over u. The returned channel
	// receives exactly one Result and is then closed; Sign must not block
	// past request submission. Cancelling ctx may abandon the request
	// before a Result is produced, in which case the channel is closed
	// without ever sending.
	Sign(ctx context.T, u *event.UnsignedEvent) <-chan Result

	// Verify reports whether ev's signature is valid for ev's claimed
	// author and ID.
	Verify(ev *event.E) (bool, error)
}
