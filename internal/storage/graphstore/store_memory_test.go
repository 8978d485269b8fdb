package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/pkg/platform/sentinel"
)

func TestInMemoryStore_UpsertAndNeighborhood(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "magnesium", Kind: KindIntervention, Label: "Magnesium glycinate"}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "sleep_quality", Kind: KindOutcome, Label: "Sleep quality"}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "hrv", Kind: KindBiomarker, Label: "HRV"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{FromID: "magnesium", ToID: "sleep_quality", Relation: "supports", Weight: 0.7}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{FromID: "sleep_quality", ToID: "hrv", Relation: "influences", Weight: 0.5}))

	edges, nodes, err := store.Neighborhood(ctx, "sleep_quality")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	require.Len(t, nodes, 2)
	assert.Equal(t, "hrv", nodes[0].ID)
	assert.Equal(t, "magnesium", nodes[1].ID)
}

func TestInMemoryStore_UpsertEdgeReplacesWeight(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertEdge(ctx, Edge{FromID: "a", ToID: "b", Relation: "supports", Weight: 0.3}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{FromID: "a", ToID: "b", Relation: "supports", Weight: 0.9}))

	edges, _, err := store.Neighborhood(ctx, "a")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Weight)
}

func TestInMemoryStore_NodeNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Node(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
