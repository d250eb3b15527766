package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orly.dev/relaycore/pkg/nostrcore/envelope"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/nostrcore/scope"
	"orly.dev/relaycore/pkg/relayerr"
	"orly.dev/relaycore/pkg/relaymetrics"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []envelope.RelayMessage
	bypassed []envelope.RelayMessage
	fail     bool
}

func (f *fakeSender) Send(m envelope.RelayMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.sent = append(f.sent, m)
	return true
}

func (f *fakeSender) SendBypass(m envelope.RelayMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.bypassed = append(f.bypassed, m)
	return true
}

// recordingMetrics tracks connection/subscription counts so Close's exact
// decrement behavior (spec §3/§8 invariant 2) is directly assertable.
type recordingMetrics struct {
	mu            sync.Mutex
	connections   int
	subscriptions int
}

func (r *recordingMetrics) IncConnections()   { r.mu.Lock(); r.connections++; r.mu.Unlock() }
func (r *recordingMetrics) DecConnections()   { r.mu.Lock(); r.connections--; r.mu.Unlock() }
func (r *recordingMetrics) IncSubscriptions() { r.mu.Lock(); r.subscriptions++; r.mu.Unlock() }
func (r *recordingMetrics) DecSubscriptions() { r.mu.Lock(); r.subscriptions--; r.mu.Unlock() }
func (r *recordingMetrics) ObserveBufferFlush(int, time.Duration)  {}
func (r *recordingMetrics) ObservePublish(bool, time.Duration)     {}

var _ relaymetrics.Sink = (*recordingMetrics)(nil)

func TestRegisterAndRemoveConnection(t *testing.T) {
	r := New(relaymetrics.Noop{})
	sender := &fakeSender{}

	handle := r.RegisterConnection("conn1", sender, "pub1", true, scope.Default)
	info, ok := r.GetConnectionInfo("conn1")
	require.True(t, ok)
	assert.Equal(t, "pub1", info.AuthPub)
	assert.True(t, info.HasAuth)

	handle.Close()
	_, ok = r.GetConnectionInfo("conn1")
	assert.False(t, ok)

	// idempotent
	handle.Close()
}

func TestAddRemoveSubscriptionUnknownConnection(t *testing.T) {
	r := New(nil)
	err := r.AddSubscription("nope", "sub1", nil)
	assert.ErrorIs(t, err, relayerr.ErrConnectionNotFound)

	err = r.RemoveSubscription("nope", "sub1")
	assert.ErrorIs(t, err, relayerr.ErrConnectionNotFound)
}

func TestRemoveSubscriptionOnlyDecrementsWhenPresent(t *testing.T) {
	metrics := &recordingMetrics{}
	r := New(metrics)
	sender := &fakeSender{}
	r.RegisterConnection("conn1", sender, "", false, scope.Default)

	require.NoError(t, r.AddSubscription("conn1", "sub1", nil))
	assert.Equal(t, 1, metrics.subscriptions)

	require.NoError(t, r.RemoveSubscription("conn1", "sub1"))
	assert.Equal(t, 0, metrics.subscriptions)

	// removing again is a no-op: it must not go negative.
	require.NoError(t, r.RemoveSubscription("conn1", "sub1"))
	assert.Equal(t, 0, metrics.subscriptions)
}

func TestDistributeEventScopeIsolation(t *testing.T) {
	r := New(nil)
	defaultSender := &fakeSender{}
	namedSender := &fakeSender{}

	r.RegisterConnection("conn-default", defaultSender, "", false, scope.Default)
	r.RegisterConnection("conn-named", namedSender, "", false, scope.Named("acme"))

	f := &filter.F{}
	require.NoError(t, r.AddSubscription("conn-default", "sub1", []*filter.F{f}))
	require.NoError(t, r.AddSubscription("conn-named", "sub1", []*filter.F{f}))

	ev := &event.E{ID: "id1"}
	r.DistributeEvent(ev, scope.Default)

	assert.Len(t, defaultSender.sent, 1)
	assert.Len(t, namedSender.sent, 0)
}

func TestDistributeEventReapsDeadConnection(t *testing.T) {
	r := New(nil)
	dead := &fakeSender{fail: true}
	r.RegisterConnection("conn1", dead, "", false, scope.Default)
	require.NoError(t, r.AddSubscription("conn1", "sub1", []*filter.F{{}}))

	r.DistributeEvent(&event.E{ID: "id1"}, scope.Default)

	_, ok := r.GetConnectionInfo("conn1")
	assert.False(t, ok, "connection whose send failed should be reaped")
}

func TestConnectionHandleCloseDecrementsSubscriptionMetric(t *testing.T) {
	metrics := &recordingMetrics{}
	r := New(metrics)
	sender := &fakeSender{}
	handle := r.RegisterConnection("conn1", sender, "", false, scope.Default)
	require.NoError(t, r.AddSubscription("conn1", "sub1", nil))
	require.NoError(t, r.AddSubscription("conn1", "sub2", nil))

	handle.Close()

	assert.Equal(t, 0, metrics.connections)
	assert.Equal(t, 0, metrics.subscriptions)
}
