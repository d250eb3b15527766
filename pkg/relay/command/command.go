// Package command defines the StoreCommand tagged union (spec §3/§4.3): the
// three mutation requests the Subscription Coordinator's save_and_broadcast
// operation dispatches through the Signer and Store. Modeled the way the
// teacher models its publish pipeline's request types (pkg/publish and
// pkg/protocol/socketapi's handlers pass event+scope+response-channel
// bundles downstream) generalized into a single sum type with an explicit
// MessageSender boundary instead of the teacher's concrete websocket type.
package command

import (
	"orly.dev/relaycore/pkg/nostrcore/envelope"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/nostrcore/scope"
)

// MessageSender is the outbound transport boundary a connection exposes to
// the core (spec §6/§5): ordinary sends participate in backpressure
// counting, bypass sends (used for OK and historical replay events) do not,
// but both report
// failure the same way so a dead connection is detectable either path.
type MessageSender interface {
	// Send attempts a non-blocking ordinary delivery. Returns false if the
	// outbound queue is full or the connection is gone.
	Send(m envelope.RelayMessage) bool
	// SendBypass delivers m via the backpressure-exempt path. Returns false
	// only if the connection is gone.
	SendBypass(m envelope.RelayMessage) bool
}

// Command is the StoreCommand tagged union.
type Command interface {
	// Scope returns the tenant partition this command operates in.
	Scope() scope.T
}

// SaveUnsigned requests that an unsigned event be signed and persisted. If
// Completion is non-nil it is sent exactly once, always nil (a failure is
// reported through SaveAndBroadcast's return value instead, and a
// replaceable event is only queued for deferred batching at that point),
// and the caller is responsible for giving it buffer
// capacity of at least 1 so the coordinator never blocks completing it.
type SaveUnsigned struct {
	Event      *event.UnsignedEvent
	Scp        scope.T
	Completion chan<- error
}

func (c *SaveUnsigned) Scope() scope.T { return c.Scp }

// SaveSigned requests that an already-signed event be persisted and
// broadcast. At most one of Sender or Completion should be set: Sender is
// the MessageSender path that produces a protocol OK reply; Completion is a
// plain one-shot for callers (e.g. the replaceable buffer's flush) that
// don't need a wire response.
type SaveSigned struct {
	Event      *event.E
	Scp        scope.T
	Sender     MessageSender
	Completion chan<- error
}

func (c *SaveSigned) Scope() scope.T { return c.Scp }

// Delete requests removal of every event matching Filter in scope.
type Delete struct {
	Filter     *filter.F
	Scp        scope.T
	Completion chan<- error
}

func (c *Delete) Scope() scope.T { return c.Scp }

var (
	_ Command = (*SaveUnsigned)(nil)
	_ Command = (*SaveSigned)(nil)
	_ Command = (*Delete)(nil)
)
