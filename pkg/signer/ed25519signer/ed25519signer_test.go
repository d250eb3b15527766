package ed25519signer

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/kind"
)

func TestSignThenVerifyRoundTrip(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	u := &event.UnsignedEvent{Author: s.Pub(), CreatedAt: 100, Kind: kind.T(1), Content: "hi"}
	resCh := s.Sign(context.Bg(), u)
	res, ok := <-resCh
	require.True(t, ok)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Event)

	ok, err = s.Verify(res.Event)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	u := &event.UnsignedEvent{Author: s.Pub(), CreatedAt: 1, Kind: kind.T(1), Content: "hi"}
	res := <-s.Sign(context.Bg(), u)
	require.NoError(t, res.Err)

	res.Event.Content = "tampered"
	ok, err := s.Verify(res.Event)
	require.NoError(t, err)
	assert.False(t, ok, "verification must fail once content diverges from the signed ID")
}

func TestSignHonorsCancelledContext(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.Cancel(context.Bg())
	cancel()

	u := &event.UnsignedEvent{Author: s.Pub(), CreatedAt: 1, Kind: kind.T(1)}
	_, ok := <-s.Sign(ctx, u)
	assert.False(t, ok, "a cancelled context should close the channel without a result")
}

func TestNewFromSeedIsDeterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	s1, err := NewFromSeed(seed)
	require.NoError(t, err)
	s2, err := NewFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, s1.Pub(), s2.Pub())
}

func TestNewFromSeedRejectsWrongSize(t *testing.T) {
	_, err := NewFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}
