// Package registry implements the Subscription Registry (spec §3/§4.1): a
// process-wide, concurrent index of every connection's live subscriptions,
// grounded on the teacher's pkg/protocol/ws.Pool — the one place in the
// pack where the teacher itself reaches for puzpuzpuz/xsync/v3 to hold a
// concurrent connection map (pkg/protocol/ws/pool.go) — generalized from an
// outbound relay-client pool to an inbound subscription index, and adding
// the per-connection reader-preferred lock the spec requires (the teacher's
// Pool has no equivalent since it has no per-connection subscription map).
package registry

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/envelope"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/nostrcore/scope"
	"orly.dev/relaycore/pkg/relay/command"
	"orly.dev/relaycore/pkg/relayerr"
	"orly.dev/relaycore/pkg/relaymetrics"
)

var log = logx.Component("registry")

// connEntry is one connection's subscription state (spec's
// ConnectionSubscriptions), guarded by a reader-preferred lock: reads (the
// distribution match pass) are frequent, writes (add/remove) are rare.
type connEntry struct {
	mu      sync.RWMutex
	subs    map[string][]*filter.F
	sender  command.MessageSender
	authPub string
	hasAuth bool
	scope   scope.T
}

// Registry is the process-wide subscription index. The zero value is not
// usable; construct with New.
type Registry struct {
	conns   *xsync.MapOf[string, *connEntry]
	metrics relaymetrics.Sink
}

// New constructs an empty Registry. A nil metrics sink is replaced with
// relaymetrics.Noop.
func New(metrics relaymetrics.Sink) *Registry {
	if metrics == nil {
		metrics = relaymetrics.Noop{}
	}
	return &Registry{
		conns:   xsync.NewMapOf[string, *connEntry](),
		metrics: metrics,
	}
}

// ConnectionHandle is the RAII token returned by RegisterConnection. Its
// sole invariant (spec §3): calling Close removes the registry entry for
// the connection and decrements its active-subscription metric by however
// many subscriptions it held. Close is idempotent and safe to call more
// than once, including concurrently with distribution's own reaping of a
// dead connection.
type ConnectionHandle struct {
	id       string
	registry *Registry
}

// Close removes this connection from the registry. Safe to call multiple
// times; only the first call (whichever of Close or a distribution-driven
// reap happens first) has any effect.
func (h *ConnectionHandle) Close() {
	h.registry.removeConnection(h.id)
}

// RegisterConnection inserts a fresh, empty ConnectionSubscriptions for id
// and returns its ConnectionHandle.
func (r *Registry) RegisterConnection(
	id string, sender command.MessageSender, authPub string, hasAuth bool,
	scp scope.T,
) *ConnectionHandle {
	entry := &connEntry{
		subs:    make(map[string][]*filter.F),
		sender:  sender,
		authPub: authPub,
		hasAuth: hasAuth,
		scope:   scp,
	}
	r.conns.Store(id, entry)
	r.metrics.IncConnections()
	return &ConnectionHandle{id: id, registry: r}
}

// AddSubscription installs filters under subID for connID, overwriting any
// prior filters under the same sub id, and increments the active-
// subscription metric.
func (r *Registry) AddSubscription(connID, subID string, filters []*filter.F) error {
	entry, ok := r.conns.Load(connID)
	if !ok {
		return relayerr.ErrConnectionNotFound
	}
	entry.mu.Lock()
	entry.subs[subID] = filters
	entry.mu.Unlock()
	r.metrics.IncSubscriptions()
	return nil
}

// RemoveSubscription removes subID from connID's subscription map,
// decrementing the metric iff a subscription was actually present.
func (r *Registry) RemoveSubscription(connID, subID string) error {
	entry, ok := r.conns.Load(connID)
	if !ok {
		return relayerr.ErrConnectionNotFound
	}
	entry.mu.Lock()
	_, existed := entry.subs[subID]
	delete(entry.subs, subID)
	entry.mu.Unlock()
	if existed {
		r.metrics.DecSubscriptions()
	}
	return nil
}

// ConnectionInfo is the read-only view GetConnectionInfo returns.
type ConnectionInfo struct {
	AuthPub string
	HasAuth bool
	Scope   scope.T
}

// GetConnectionInfo returns connID's auth pubkey and scope, or ok=false if
// the connection no longer exists.
func (r *Registry) GetConnectionInfo(connID string) (info ConnectionInfo, ok bool) {
	entry, found := r.conns.Load(connID)
	if !found {
		return ConnectionInfo{}, false
	}
	return ConnectionInfo{AuthPub: entry.authPub, HasAuth: entry.hasAuth, Scope: entry.scope}, true
}

// DistributeEvent delivers ev to every live subscription in scope scp whose
// filters match, using a non-blocking send per spec §4.1/§5/§9: this method
// never suspends. A connection whose send fails (full queue or closed
// connection) is reaped after the full traversal completes, so one dead
// connection cannot stall delivery to the rest.
func (r *Registry) DistributeEvent(ev *event.E, scp scope.T) {
	var dead []string
	r.conns.Range(func(id string, entry *connEntry) bool {
		if !entry.scope.Equal(scp) {
			return true
		}
		entry.mu.RLock()
		var matched []string
		for subID, filters := range entry.subs {
			for _, f := range filters {
				if f.Matches(ev) {
					matched = append(matched, subID)
					break
				}
			}
		}
		sender := entry.sender
		entry.mu.RUnlock()

		for _, subID := range matched {
			msg := &envelope.EventMsg{SubID: subID, Event: ev}
			if !sender.Send(msg) {
				dead = append(dead, id)
				break
			}
		}
		return true
	})
	for _, id := range dead {
		log.Debug().Str("conn", id).Msg("reaping connection: outbound send failed")
		r.removeConnection(id)
	}
}

// removeConnection deletes id from the registry and reports its final
// subscription count to metrics. Idempotent: a second call for an id
// already removed is a no-op, which is what makes ConnectionHandle.Close
// safe to race against distribution's own reaping.
func (r *Registry) removeConnection(id string) {
	entry, ok := r.conns.LoadAndDelete(id)
	if !ok {
		return
	}
	entry.mu.RLock()
	n := len(entry.subs)
	entry.mu.RUnlock()
	for i := 0; i < n; i++ {
		r.metrics.DecSubscriptions()
	}
	r.metrics.DecConnections()
}
