package badgerstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/nostrcore/scope"
)

func openTestStore(t *testing.T) *D {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSaveAndQueryRoundTrip(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Bg()

	ev := &event.E{ID: "id1", Author: "pk1", CreatedAt: 1000, Kind: 1, Content: "hello"}
	require.NoError(t, d.Save(ctx, ev, scope.Default))

	results, err := d.Query(ctx, &filter.F{}, scope.Default)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "id1", results[0].ID)
	assert.Equal(t, "hello", results[0].Content)
}

func TestSaveIsIdempotent(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Bg()

	ev := &event.E{ID: "id1", Author: "pk1", CreatedAt: 1000, Kind: 1, Content: "v1"}
	require.NoError(t, d.Save(ctx, ev, scope.Default))
	require.NoError(t, d.Save(ctx, ev, scope.Default))

	results, err := d.Query(ctx, &filter.F{}, scope.Default)
	require.NoError(t, err)
	assert.Len(t, results, 1, "saving the same ID twice must not duplicate it")
}

func TestQueryOrdersNewestFirst(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Bg()

	for i, ca := range []int64{100, 300, 200} {
		ev := &event.E{ID: string(rune('a' + i)), Author: "pk1", CreatedAt: ca, Kind: 1}
		require.NoError(t, d.Save(ctx, ev, scope.Default))
	}

	results, err := d.Query(ctx, &filter.F{}, scope.Default)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(300), results[0].CreatedAt)
	assert.Equal(t, int64(200), results[1].CreatedAt)
	assert.Equal(t, int64(100), results[2].CreatedAt)
}

func TestQueryRespectsLimit(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Bg()

	for i, ca := range []int64{100, 200, 300} {
		ev := &event.E{ID: string(rune('a' + i)), Author: "pk1", CreatedAt: ca, Kind: 1}
		require.NoError(t, d.Save(ctx, ev, scope.Default))
	}

	lim := uint(2)
	results, err := d.Query(ctx, &filter.F{Limit: &lim}, scope.Default)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueryIsScopeIsolated(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Bg()

	require.NoError(t, d.Save(ctx, &event.E{ID: "default-ev", CreatedAt: 1, Kind: 1}, scope.Default))
	require.NoError(t, d.Save(ctx, &event.E{ID: "acme-ev", CreatedAt: 1, Kind: 1}, scope.Named("acme")))

	results, err := d.Query(ctx, &filter.F{}, scope.Default)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "default-ev", results[0].ID)
}

func TestDeleteRemovesMatchingEvents(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Bg()

	require.NoError(t, d.Save(ctx, &event.E{ID: "id1", CreatedAt: 1, Kind: 1, Author: "pk1"}, scope.Default))
	require.NoError(t, d.Save(ctx, &event.E{ID: "id2", CreatedAt: 2, Kind: 1, Author: "pk2"}, scope.Default))

	require.NoError(t, d.Delete(ctx, &filter.F{Authors: []string{"pk1"}}, scope.Default))

	results, err := d.Query(ctx, &filter.F{}, scope.Default)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "id2", results[0].ID)
}
