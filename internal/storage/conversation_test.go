package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/gateway-backend/internal/storage/memory"
	"github.com/mosaicchat/gateway-backend/internal/types"
)

func TestConversationRepository_AppendOrder(t *testing.T) {
	repo := NewConversationRepository(memory.New())
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		err := repo.AddMessage(ctx, "conv-1", types.ConversationMessage{Role: types.RoleUser, Content: c})
		require.NoError(t, err)
	}

	history, err := repo.GetHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, c := range contents {
		require.Equal(t, c, history[i].Content)
		require.NotNil(t, history[i].Timestamp, "timestamp should be stamped on append")
	}
}

func TestConversationRepository_UnknownIsEmpty(t *testing.T) {
	repo := NewConversationRepository(memory.New())

	history, err := repo.GetHistory(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, history)

	exists, err := repo.ConversationExists(context.Background(), "never-seen")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestConversationRepository_Delete(t *testing.T) {
	repo := NewConversationRepository(memory.New())
	ctx := context.Background()

	require.NoError(t, repo.AddMessage(ctx, "conv-1", types.ConversationMessage{Role: types.RoleUser, Content: "hi"}))

	exists, err := repo.ConversationExists(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, repo.DeleteConversation(ctx, "conv-1"))

	exists, err = repo.ConversationExists(ctx, "conv-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestConversationRepository_ConcurrentAppends(t *testing.T) {
	repo := NewConversationRepository(memory.New())
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.AddMessage(ctx, "conv-1", types.ConversationMessage{Role: types.RoleUser, Content: "msg"})
		}()
	}
	wg.Wait()

	history, err := repo.GetHistory(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, writers, "no append may be lost under concurrency")
}
