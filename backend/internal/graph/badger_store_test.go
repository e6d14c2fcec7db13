package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "spoke-graph/backend/pkg/errors"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func provision(t *testing.T, store *BadgerStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, NodeCollection, CollectionTypeDocument))
	require.NoError(t, store.CreateCollection(ctx, EdgeCollection, CollectionTypeEdge))
}

func TestBadgerStore_CreateCollectionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)

	exists, err := store.HasCollection(ctx, EdgeCollection)
	require.NoError(t, err)
	assert.False(t, exists)

	provision(t, store)
	provision(t, store)

	exists, err = store.HasCollection(ctx, EdgeCollection)
	require.NoError(t, err)
	assert.True(t, exists)

	kind, err := store.CollectionType(EdgeCollection)
	require.NoError(t, err)
	assert.Equal(t, CollectionTypeEdge, kind)

	kind, err = store.CollectionType(NodeCollection)
	require.NoError(t, err)
	assert.Equal(t, CollectionTypeDocument, kind)
}

func TestBadgerStore_InsertNodeDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)
	provision(t, store)

	doc := NodeDocument{Key: "7", Properties: map[string]any{"type": "node", "labels": []any{"Gene"}}}
	require.NoError(t, store.InsertNode(ctx, doc))

	err := store.InsertNode(ctx, doc)
	require.Error(t, err)
	assert.True(t, apperrors.IsDuplicateKey(err))

	got, err := store.Get(ctx, NodeCollection, "7")
	require.NoError(t, err)
	assert.Equal(t, "7", got[AttrKey])
	assert.Equal(t, "Nodes/7", got[AttrID])
	assert.Equal(t, []any{"Gene"}, got["labels"])

	total, err := store.Count(ctx, NodeCollection)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestBadgerStore_InsertEdgeDangling(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)
	provision(t, store)

	err := store.InsertEdge(ctx, EdgeDocument{
		From:       "Nodes/1",
		To:         "Nodes/404",
		Properties: map[string]any{"weight": int64(5)},
	})
	require.NoError(t, err)

	edges, err := store.Documents(ctx, EdgeCollection)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "Nodes/1", edges[0][AttrFrom])
	assert.Equal(t, "Nodes/404", edges[0][AttrTo])
	assert.Equal(t, float64(5), edges[0]["weight"])

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Nodes)
	assert.EqualValues(t, 1, stats.Edges)
}

func TestBadgerStore_InsertWithoutCollection(t *testing.T) {
	store := newTestBadgerStore(t)

	err := store.InsertNode(context.Background(), NodeDocument{Key: "1"})
	require.Error(t, err)
	assert.False(t, apperrors.IsDuplicateKey(err))
}
