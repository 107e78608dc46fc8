package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/gateway-backend/internal/storage/memory"
)

func TestDeriveUserID_Deterministic(t *testing.T) {
	a := DeriveUserID("conv-1")
	b := DeriveUserID("conv-1")
	c := DeriveUserID("conv-2")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 32)
}

func TestUserMemory_ScratchRoundTrip(t *testing.T) {
	m := NewUserMemory(memory.New())
	ctx := context.Background()

	require.NoError(t, m.SetScratch(ctx, "conv-1", "step", "pending"))

	val, ok, err := m.GetScratch(ctx, "conv-1", "step")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "pending", val)

	_, ok, err = m.GetScratch(ctx, "conv-1", "other")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUserMemory_SearchLongTerm(t *testing.T) {
	m := NewUserMemory(memory.New())
	ctx := context.Background()
	userID := DeriveUserID("conv-1")

	require.NoError(t, m.StoreLongTerm(ctx, userID, "preferences", "Likes green tea"))
	require.NoError(t, m.StoreLongTerm(ctx, userID, "personal", "Lives in Madrid"))
	require.NoError(t, m.StoreLongTerm(ctx, DeriveUserID("conv-other"), "personal", "Likes tea too"))

	// Case-insensitive substring, scoped to the user.
	entries, err := m.SearchLongTerm(ctx, userID, "TEA", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Likes green tea", entries[0].Content)

	// Empty query returns everything for the user.
	entries, err = m.SearchLongTerm(ctx, userID, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Limit caps the result set.
	entries, err = m.SearchLongTerm(ctx, userID, "", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
