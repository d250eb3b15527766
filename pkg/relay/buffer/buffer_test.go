package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/nostrcore/kind"
	"orly.dev/relaycore/pkg/nostrcore/scope"
	"orly.dev/relaycore/pkg/signer"
)

type fakeSigner struct{}

func (fakeSigner) Pub() string { return "pub" }

func (fakeSigner) Sign(ctx context.T, u *event.UnsignedEvent) <-chan signer.Result {
	ch := make(chan signer.Result, 1)
	ch <- signer.Result{Event: &event.E{
		ID: u.ID(), Author: u.Author, CreatedAt: u.CreatedAt, Kind: u.Kind,
		Tags: u.Tags, Content: u.Content, Sig: "sig",
	}}
	close(ch)
	return ch
}

func (fakeSigner) Verify(*event.E) (bool, error) { return true, nil }

type fakeStore struct {
	mu    sync.Mutex
	saved []*event.E
}

func (f *fakeStore) Query(context.T, *filter.F, scope.T) (event.S, error) { return nil, nil }

func (f *fakeStore) Save(ctx context.T, ev *event.E, s scope.T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, ev)
	return nil
}

func (f *fakeStore) Delete(context.T, *filter.F, scope.T) error { return nil }
func (f *fakeStore) Close() error                               { return nil }

// feed drives the same receive-and-coalesce step Run's main loop performs,
// without starting the background goroutine, so tests stay deterministic.
func feed(b *B, ev *event.UnsignedEvent, scp scope.T) {
	k := key{author: ev.Author, kind: ev.Kind, scope: scp}
	b.coalesced[k] = ev
}

func TestEnqueueDiscardsNonReplaceableKind(t *testing.T) {
	str := &fakeStore{}
	b := New(str, fakeSigner{}, nil, 0)
	ctx := context.Bg()

	b.Enqueue(ctx, &event.UnsignedEvent{Author: "auth1", Kind: kind.T(1), Content: "regular"}, scope.Default)

	select {
	case <-b.in:
		t.Fatal("non-replaceable event should never reach the incoming queue")
	default:
	}
}

func TestEnqueueAcceptsReplaceableKind(t *testing.T) {
	str := &fakeStore{}
	b := New(str, fakeSigner{}, nil, 0)
	ctx := context.Bg()

	b.Enqueue(ctx, &event.UnsignedEvent{Author: "auth1", Kind: 0, Content: "v1"}, scope.Default)

	select {
	case it := <-b.in:
		assert.Equal(t, "v1", it.ev.Content)
	default:
		t.Fatal("expected the replaceable event to be queued")
	}
}

func TestFlushCoalescesToLatestPerAuthorKindScope(t *testing.T) {
	str := &fakeStore{}
	b := New(str, fakeSigner{}, nil, 0)
	ctx := context.Bg()

	feed(b, &event.UnsignedEvent{Author: "auth1", Kind: 0, Content: "v1"}, scope.Default)
	feed(b, &event.UnsignedEvent{Author: "auth1", Kind: 0, Content: "v2"}, scope.Default)

	b.flush(ctx)

	assert.Len(t, str.saved, 1)
	assert.Equal(t, "v2", str.saved[0].Content)
}

func TestFlushKeepsScopesSeparate(t *testing.T) {
	str := &fakeStore{}
	b := New(str, fakeSigner{}, nil, 0)
	ctx := context.Bg()

	feed(b, &event.UnsignedEvent{Author: "auth1", Kind: 0, Content: "default-scope"}, scope.Default)
	feed(b, &event.UnsignedEvent{Author: "auth1", Kind: 0, Content: "acme-scope"}, scope.Named("acme"))

	b.flush(ctx)

	assert.Len(t, str.saved, 2)
}

func TestFlushOfEmptyMapIsNoop(t *testing.T) {
	str := &fakeStore{}
	b := New(str, fakeSigner{}, nil, 0)
	b.flush(context.Bg())
	assert.Empty(t, str.saved)
}
