package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/gateway-backend/internal/ai/openrouter"
	"github.com/mosaicchat/gateway-backend/internal/knowledge"
	"github.com/mosaicchat/gateway-backend/internal/storage"
	"github.com/mosaicchat/gateway-backend/internal/storage/memory"
	"github.com/mosaicchat/gateway-backend/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *storage.ConversationRepository) {
	t.Helper()
	provider := memory.New()
	repo := storage.NewConversationRepository(provider)
	index := knowledge.NewKVIndex(storage.NewUserMemory(provider))
	return NewEngine(repo, index), repo
}

func TestEngine_DefinitionsGated(t *testing.T) {
	engine, _ := newTestEngine(t)

	require.Nil(t, engine.Definitions(false, false), "tools must stay off the wire when nothing is enabled")

	// Each gate contributes only its own schemas.
	require.ElementsMatch(t,
		[]string{ToolStoreUserInfo, ToolRecallUserInfo},
		definitionNames(engine.Definitions(true, false)))
	require.ElementsMatch(t,
		[]string{ToolSearchConversation},
		definitionNames(engine.Definitions(false, true)))

	defs := engine.Definitions(true, true)
	require.Len(t, defs, 3)
	for _, d := range defs {
		require.Equal(t, "function", d.Type)
	}
	require.ElementsMatch(t,
		[]string{ToolStoreUserInfo, ToolRecallUserInfo, ToolSearchConversation},
		definitionNames(defs))
}

func definitionNames(defs []openrouter.Tool) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	return names
}

func TestEngine_ParseTextCall(t *testing.T) {
	engine, _ := newTestEngine(t)

	msg := openrouter.ResponseMessage{
		Content: `Before. storeUserInfo(info="likes tea") After.`,
	}
	content, calls := engine.ParseResponse(msg)

	require.NotContains(t, content, "storeUserInfo")
	require.Contains(t, content, "Before.")
	require.Contains(t, content, "After.")

	require.Len(t, calls, 1)
	require.Equal(t, ToolStoreUserInfo, calls[0].Name)
	require.Equal(t, SourceText, calls[0].Source)
	require.Equal(t, "likes tea", calls[0].Args["info"])
}

func TestEngine_ParseTextCallWithCategory(t *testing.T) {
	engine, _ := newTestEngine(t)

	msg := openrouter.ResponseMessage{
		Content: `storeUserInfo(info="born in May", category="personal")`,
	}
	content, calls := engine.ParseResponse(msg)

	require.Empty(t, content)
	require.Len(t, calls, 1)
	require.Equal(t, "born in May", calls[0].Args["info"])
	require.Equal(t, "personal", calls[0].Args["category"])
}

func TestEngine_ParseStripsMarker(t *testing.T) {
	engine, _ := newTestEngine(t)

	msg := openrouter.ResponseMessage{
		Content: `recallUserInfo(query="birthday")<|python_end|>`,
	}
	content, calls := engine.ParseResponse(msg)

	require.Empty(t, content)
	require.Len(t, calls, 1)
	require.Equal(t, ToolRecallUserInfo, calls[0].Name)
	require.Equal(t, "birthday", calls[0].Args["query"])
}

func TestEngine_ParseStructuredCall(t *testing.T) {
	engine, _ := newTestEngine(t)

	msg := openrouter.ResponseMessage{
		Content: "",
		ToolCalls: []openrouter.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: openrouter.ToolCallFunction{
				Name:      ToolSearchConversation,
				Arguments: `{"query":"budget","timeframe":"recent"}`,
			},
		}},
	}
	content, calls := engine.ParseResponse(msg)

	require.Empty(t, content)
	require.Len(t, calls, 1)
	require.Equal(t, SourceStructured, calls[0].Source)
	require.Equal(t, "budget", calls[0].Args["query"])
	require.Equal(t, "recent", calls[0].Args["timeframe"])
}

func TestEngine_StoreThenRecall(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	stored := engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolStoreUserInfo,
		Args: map[string]any{"info": "likes green tea", "category": "preferences"},
	})
	require.Equal(t, true, stored.Output["success"])

	recalled := engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolRecallUserInfo,
		Args: map[string]any{"query": "tea"},
	})
	require.Equal(t, true, recalled.Output["success"])
	results := recalled.Output["results"].([]any)
	require.Len(t, results, 1)
	require.Equal(t, "likes green tea", results[0].(map[string]any)["content"])

	// Facts are namespaced per conversation-derived user.
	other := engine.Execute(ctx, "conv-2", ToolCall{
		Name: ToolRecallUserInfo,
		Args: map[string]any{"query": "tea"},
	})
	require.Empty(t, other.Output["results"])
}

func TestEngine_NilIndexDegrades(t *testing.T) {
	repo := storage.NewConversationRepository(memory.New())
	engine := NewEngine(repo, nil)
	ctx := context.Background()

	for _, call := range []ToolCall{
		{Name: ToolStoreUserInfo, Args: map[string]any{"info": "x"}},
		{Name: ToolRecallUserInfo, Args: map[string]any{"query": "x"}},
	} {
		res := engine.Execute(ctx, "conv-1", call)
		require.Equal(t, false, res.Output["success"])
		require.Empty(t, res.Output["results"])
	}
}

func TestEngine_UnknownTool(t *testing.T) {
	engine, _ := newTestEngine(t)

	res := engine.Execute(context.Background(), "conv-1", ToolCall{Name: "launchRocket"})
	require.Equal(t, false, res.Output["success"])
}

func TestEngine_SearchConversationTimeframes(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	// 20 messages; "needle" appears at positions 2 (beginning),
	// 10 (middle) and 18 (recent).
	for i := 0; i < 20; i++ {
		content := fmt.Sprintf("filler message %d", i)
		if i == 2 || i == 10 || i == 18 {
			content = fmt.Sprintf("the needle is here (%d)", i)
		}
		require.NoError(t, repo.AddMessage(ctx, "conv-1", types.ConversationMessage{
			Role:    types.RoleUser,
			Content: content,
		}))
	}

	for _, timeframe := range []string{"recent", "beginning", "middle", "all"} {
		res := engine.Execute(ctx, "conv-1", ToolCall{
			Name: ToolSearchConversation,
			Args: map[string]any{"query": "needle", "timeframe": timeframe},
		})
		require.Equal(t, true, res.Output["found"], "timeframe %s", timeframe)
		require.Equal(t, timeframe, res.Output["timeframe"])
	}

	// Recent window is the last 10 messages: both 10 and 18 land in it.
	res := engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolSearchConversation,
		Args: map[string]any{"query": "needle", "timeframe": "recent"},
	})
	require.Len(t, res.Output["matches"], 2)

	res = engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolSearchConversation,
		Args: map[string]any{"query": "needle", "timeframe": "all"},
	})
	require.Len(t, res.Output["matches"], 3)
}

func TestEngine_SearchConversationNoMatch(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, repo.AddMessage(ctx, "conv-1", types.ConversationMessage{
		Role:    types.RoleUser,
		Content: "nothing interesting",
	}))

	res := engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolSearchConversation,
		Args: map[string]any{"query": "zebra"},
	})
	require.Equal(t, false, res.Output["found"])
	require.Empty(t, res.Output["matches"])
}

func TestEngine_SearchMatchesLongWords(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, repo.AddMessage(ctx, "conv-1", types.ConversationMessage{
		Role:    types.RoleUser,
		Content: "We discussed the project deadline on Friday",
	}))

	// Whole phrase misses but the word "deadline" (>3 chars) hits.
	res := engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolSearchConversation,
		Args: map[string]any{"query": "final deadline review"},
	})
	require.Equal(t, true, res.Output["found"])

	// Short words alone never match.
	res = engine.Execute(ctx, "conv-1", ToolCall{
		Name: ToolSearchConversation,
		Args: map[string]any{"query": "a on we"},
	})
	require.Equal(t, false, res.Output["found"])
}
