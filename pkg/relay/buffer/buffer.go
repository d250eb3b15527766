// Package buffer implements the Replaceable-Event Buffer (spec §4.4): a
// per-connection coalescing queue that keeps only the latest unsigned event
// per (author, kind, scope) and periodically signs and persists the
// survivors, grounded on the teacher's own periodic-ticker-plus-cancellation
// background-task idiom (pkg/database/database.go's expiration goroutine,
// internal/context/context.go's cancellation contract), generalized from a
// one-shot expiry sweep to a continuously-coalescing flush loop.
package buffer

import (
	"time"

	"orly.dev/relaycore/internal/chk"
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/kind"
	"orly.dev/relaycore/pkg/nostrcore/scope"
	"orly.dev/relaycore/pkg/relaymetrics"
	"orly.dev/relaycore/pkg/signer"
	"orly.dev/relaycore/pkg/store"
)

var log = logx.Component("buffer")

// DefaultCapacity bounds the incoming queue (spec §4.4/§5: "bound ~10 000").
const DefaultCapacity = 10000

// FlushInterval is how often the background task flushes the coalescing
// map absent a cancellation (spec §4.4: "every one second").
const FlushInterval = time.Second

// item is one (UnsignedEvent, Scope) tuple accepted onto the incoming
// queue.
type item struct {
	ev  *event.UnsignedEvent
	scp scope.T
}

// key identifies a coalescing slot: only the latest event under a given
// (author, kind, scope) survives to the next flush.
type key struct {
	author string
	kind   kind.T
	scope  scope.T
}

// B is a Replaceable-Event Buffer bound to one connection's lifetime.
type B struct {
	in      chan item
	store   store.I
	signer  signer.I
	metrics relaymetrics.Sink

	coalesced map[key]*event.UnsignedEvent
}

// New constructs a buffer that signs and saves through sgr/str. capacity <=
// 0 falls back to DefaultCapacity. The background task is not started until
// Run is called.
func New(str store.I, sgr signer.I, metrics relaymetrics.Sink, capacity int) *B {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if metrics == nil {
		metrics = relaymetrics.Noop{}
	}
	return &B{
		in:        make(chan item, capacity),
		store:     str,
		signer:    sgr,
		metrics:   metrics,
		coalesced: make(map[key]*event.UnsignedEvent),
	}
}

// Enqueue submits (ev, scp) onto the bounded incoming queue, blocking if it
// is full (spec §5: "the producer awaits on full"). Events whose kind is
// not replaceable/addressable are discarded defensively — callers should
// not submit them, but the buffer does not trust that.
func (b *B) Enqueue(ctx context.T, ev *event.UnsignedEvent, scp scope.T) {
	if !ev.Kind.IsReplaceableOrAddressable() {
		log.Warn().Int("kind", int(ev.Kind)).Msg("discarding non-replaceable event offered to buffer")
		return
	}
	select {
	case b.in <- item{ev: ev, scp: scp}:
	case <-ctx.Done():
	}
}

// Run owns the receiver end and the coalescing map until ctx is cancelled.
// On cancellation it flushes once more and returns. Intended to be run as
// the connection's dedicated background task.
func (b *B) Run(ctx context.T) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case it := <-b.in:
			if !it.ev.Kind.IsReplaceableOrAddressable() {
				continue
			}
			k := key{author: it.ev.Author, kind: it.ev.Kind, scope: it.scp}
			b.coalesced[k] = it.ev
		case <-ticker.C:
			b.flush(ctx)
		case <-ctx.Done():
			b.flush(ctx)
			return
		}
	}
}

// flush drains the coalescing map, signing and saving each survivor. A
// failure for one event is logged and does not block the others (spec
// §4.4).
func (b *B) flush(ctx context.T) {
	if len(b.coalesced) == 0 {
		return
	}
	start := time.Now()
	n := len(b.coalesced)
	for k, ev := range b.coalesced {
		delete(b.coalesced, k)
		b.signAndSave(ctx, ev, k.scope)
	}
	b.metrics.ObserveBufferFlush(n, time.Since(start))
}

func (b *B) signAndSave(ctx context.T, u *event.UnsignedEvent, scp scope.T) {
	resultCh := b.signer.Sign(ctx, u)
	res, ok := <-resultCh
	if !ok {
		log.Error().Msg("buffer flush: signer channel closed without a result")
		return
	}
	if chk.E(res.Err) {
		return
	}
	if res.Event == nil {
		log.Error().Msg("buffer flush: signer reported success with no event")
		return
	}
	if err := b.store.Save(ctx, res.Event, scp); chk.E(err) {
		return
	}
}
