package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/gateway-backend/internal/storage"
	"github.com/mosaicchat/gateway-backend/internal/storage/memory"
)

func TestContentID_Deterministic(t *testing.T) {
	a := ContentID("likes tea", "preferences")
	b := ContentID("likes tea", "preferences")
	c := ContentID("likes tea", "personal")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestKVIndex_UpsertAndSearch(t *testing.T) {
	mem := storage.NewUserMemory(memory.New())
	idx := NewKVIndex(mem)
	ctx := context.Background()

	err := idx.Upsert(ctx, Entry{UserID: "u1", Category: "preferences", Content: "likes green tea"})
	require.NoError(t, err)
	err = idx.Upsert(ctx, Entry{UserID: "u1", Category: "personal", Content: "lives in Madrid"})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "u1", "tea", DefaultTopK)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "likes green tea", hits[0].Content)
	require.Equal(t, 1.0, hits[0].Score)
}

func TestKVIndex_SearchOtherUserIsolated(t *testing.T) {
	mem := storage.NewUserMemory(memory.New())
	idx := NewKVIndex(mem)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Entry{UserID: "u1", Category: "personal", Content: "likes tea"}))

	hits, err := idx.Search(ctx, "u2", "tea", DefaultTopK)
	require.NoError(t, err)
	require.Empty(t, hits)
}
