package memindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personahub/agent-service/internal/model"
)

// fakeEmbedder maps known words onto fixed orthogonal-ish vectors so
// similarity ordering is deterministic without a real model.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	switch text {
	case "likes painting", "painting":
		return []float32{1, 0, 0.1}, nil
	case "favorite color is blue", "blue":
		return []float32{0, 1, 0.1}, nil
	default:
		return []float32{0.5, 0.5, 0.1}, nil
	}
}

func TestSearchScoping(t *testing.T) {
	ctx := context.Background()
	ix, err := New(fakeEmbedder{})
	require.NoError(t, err)

	shared := model.MemoryScope{PersonaName: "nova"}
	scoped := model.MemoryScope{PersonaName: "nova", UserID: "U1"}

	require.NoError(t, ix.Add(ctx, &model.Memory{MemoryID: "m1", Scope: shared, Content: "likes painting"}))
	require.NoError(t, ix.Add(ctx, &model.Memory{MemoryID: "m2", Scope: scoped, Content: "favorite color is blue"}))

	// Scoped query must not see the shared document and vice versa.
	hits, err := ix.Search(ctx, scoped, "blue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m2", hits[0].MemoryID)

	hits, err = ix.Search(ctx, shared, "painting", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].MemoryID)

	// Foreign user sees nothing.
	hits, err = ix.Search(ctx, model.MemoryScope{PersonaName: "nova", UserID: "U2"}, "blue", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchEmptyIndex(t *testing.T) {
	ix, err := New(fakeEmbedder{})
	require.NoError(t, err)

	hits, err := ix.Search(context.Background(), model.MemoryScope{PersonaName: "nova"}, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	ix, err := New(fakeEmbedder{})
	require.NoError(t, err)

	scope := model.MemoryScope{PersonaName: "nova"}
	require.NoError(t, ix.Add(ctx, &model.Memory{MemoryID: "m1", Scope: scope, Content: "likes painting"}))
	require.NoError(t, ix.Remove(ctx, scope, "m1"))

	hits, err := ix.Search(ctx, scope, "painting", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRemoveScopes(t *testing.T) {
	ctx := context.Background()
	ix, err := New(fakeEmbedder{})
	require.NoError(t, err)

	shared := model.MemoryScope{PersonaName: "nova"}
	scoped := model.MemoryScope{PersonaName: "nova", UserID: "U1"}
	other := model.MemoryScope{PersonaName: "vega"}

	require.NoError(t, ix.Add(ctx, &model.Memory{MemoryID: "m1", Scope: shared, Content: "likes painting"}))
	require.NoError(t, ix.Add(ctx, &model.Memory{MemoryID: "m2", Scope: scoped, Content: "favorite color is blue"}))
	require.NoError(t, ix.Add(ctx, &model.Memory{MemoryID: "m3", Scope: other, Content: "likes painting"}))

	ix.RemoveScopes("nova")

	for _, scope := range []model.MemoryScope{shared, scoped} {
		hits, err := ix.Search(ctx, scope, "painting", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	}

	// another persona's collections are untouched
	hits, err := ix.Search(ctx, other, "painting", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m3", hits[0].MemoryID)
}
