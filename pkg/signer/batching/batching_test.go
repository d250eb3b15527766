package batching

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/signer"
)

type countingSigner struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSigner) Pub() string { return "batched-pub" }

func (c *countingSigner) Sign(ctx context.T, u *event.UnsignedEvent) <-chan signer.Result {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	ch := make(chan signer.Result, 1)
	ch <- signer.Result{Event: &event.E{ID: u.ID(), Content: u.Content}}
	close(ch)
	return ch
}

func (c *countingSigner) Verify(*event.E) (bool, error) { return true, nil }

func TestSignDelegatesAndReturnsResult(t *testing.T) {
	inner := &countingSigner{}
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	d := New(ctx, inner, 2, 4)

	res := <-d.Sign(ctx, &event.UnsignedEvent{Content: "hi"})
	require.NoError(t, res.Err)
	assert.Equal(t, "hi", res.Event.Content)
}

func TestSignFanOutAcrossWorkers(t *testing.T) {
	inner := &countingSigner{}
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	d := New(ctx, inner, 4, 16)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-d.Sign(ctx, &event.UnsignedEvent{Content: "x"})
		}()
	}
	wg.Wait()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	assert.Equal(t, 10, inner.calls)
}

func TestSignClosesChannelOnCancelledDispatcher(t *testing.T) {
	inner := &countingSigner{}
	ctx, cancel := context.Cancel(context.Bg())
	d := New(ctx, inner, 1, 1)
	cancel()

	require.Eventually(t, func() bool {
		_, ok := <-d.Sign(context.Bg(), &event.UnsignedEvent{})
		return !ok
	}, time.Second, time.Millisecond)
}

func TestPubAndVerifyDelegate(t *testing.T) {
	inner := &countingSigner{}
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	d := New(ctx, inner, 1, 1)

	assert.Equal(t, "batched-pub", d.Pub())
	ok, err := d.Verify(&event.E{})
	require.NoError(t, err)
	assert.True(t, ok)
}
