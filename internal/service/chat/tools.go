package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sirupsen/logrus"

	"github.com/mosaicchat/gateway-backend/internal/ai/openrouter"
	"github.com/mosaicchat/gateway-backend/internal/knowledge"
	"github.com/mosaicchat/gateway-backend/internal/storage"
	"github.com/mosaicchat/gateway-backend/internal/types"
)

// Tool names as the model sees them. The text-call patterns below match
// these names literally, so they must stay in sync.
const (
	ToolStoreUserInfo      = "storeUserInfo"
	ToolRecallUserInfo     = "recallUserInfo"
	ToolSearchConversation = "searchConversation"
)

// pythonEndMarker is emitted by some models after inline tool syntax and
// must never reach the user.
const pythonEndMarker = "<|python_end|>"

// CallSource tags how a tool call was detected.
type CallSource string

const (
	// SourceStructured means the provider returned a tool_calls entry.
	SourceStructured CallSource = "structured"
	// SourceText means the call was written inline in the message text.
	SourceText CallSource = "text"
)

// ToolCall is one detected invocation, from either channel.
type ToolCall struct {
	ID     string
	Name   string
	Args   map[string]any
	Source CallSource
}

// ToolResult is the outcome of executing one call. Results are consumed
// internally and never rendered verbatim to the user.
type ToolResult struct {
	Name   string
	Output map[string]any
}

type toolHandler func(ctx context.Context, conversationID string, args map[string]any) (map[string]any, error)

// Engine detects and executes tool calls. Recall and store degrade to
// empty results when no knowledge index is configured; the conversation
// keeps flowing either way.
type Engine struct {
	conversations *storage.ConversationRepository
	index         knowledge.Index
	handlers      map[string]toolHandler
	log           *logrus.Entry
}

// NewEngine creates the engine with its dispatch table.
func NewEngine(conversations *storage.ConversationRepository, index knowledge.Index) *Engine {
	e := &Engine{
		conversations: conversations,
		index:         index,
		log:           logrus.WithField("component", "tool-engine"),
	}
	e.handlers = map[string]toolHandler{
		ToolStoreUserInfo:      e.storeUserInfo,
		ToolRecallUserInfo:     e.recallUserInfo,
		ToolSearchConversation: e.searchConversation,
	}
	return e
}

// Definitions returns the tool schemas to attach upstream. Store and
// recall are the knowledge-base pair, conversation search is gated
// separately; nil (not an empty slice) keeps the tools field off the
// wire when neither gate is open.
func (e *Engine) Definitions(offerKnowledge, offerSearch bool) []openrouter.Tool {
	if !offerKnowledge && !offerSearch {
		return nil
	}
	var defs []openrouter.Tool
	if offerKnowledge {
		defs = append(defs,
			openrouter.NewFunctionTool(openrouter.ToolFunction{
				Name:        ToolStoreUserInfo,
				Description: "Store a fact about the user for future conversations",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"info": {
							Type:        jsonschema.String,
							Description: "The fact to remember, stated plainly",
						},
						"category": {
							Type:        jsonschema.String,
							Description: "Optional grouping such as personal, preferences or work",
						},
					},
					Required: []string{"info"},
				},
			}),
			openrouter.NewFunctionTool(openrouter.ToolFunction{
				Name:        ToolRecallUserInfo,
				Description: "Look up previously stored facts about the user",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"query": {
							Type:        jsonschema.String,
							Description: "What to look for",
						},
					},
					Required: []string{"query"},
				},
			}),
		)
	}
	if offerSearch {
		defs = append(defs, openrouter.NewFunctionTool(openrouter.ToolFunction{
			Name:        ToolSearchConversation,
			Description: "Search earlier messages of this conversation",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {
						Type:        jsonschema.String,
						Description: "Text to search for",
					},
					"timeframe": {
						Type:        jsonschema.String,
						Description: "Which part of the conversation to search",
						Enum:        []string{"recent", "middle", "beginning", "all"},
					},
				},
				Required: []string{"query"},
			},
		}))
	}
	return defs
}

// Some models write tool calls inline instead of using the structured
// channel. One pattern per tool; capture groups are positional.
var textCallPatterns = []struct {
	name string
	re   *regexp.Regexp
	args []string
}{
	{ToolStoreUserInfo, regexp.MustCompile(`storeUserInfo\(info="([^"]+)"(?:,\s*category="([^"]+)")?\)`), []string{"info", "category"}},
	{ToolRecallUserInfo, regexp.MustCompile(`recallUserInfo\(query="([^"]+)"\)`), []string{"query"}},
	{ToolSearchConversation, regexp.MustCompile(`searchConversation\(query="([^"]+)"(?:,\s*timeframe="([^"]+)")?\)`), []string{"query", "timeframe"}},
}

// ParseResponse extracts tool calls from a model reply. Structured calls
// are taken as-is; inline text calls are detected by pattern, and every
// matched fragment plus any python-end markers are stripped from the
// visible content.
func (e *Engine) ParseResponse(msg openrouter.ResponseMessage) (string, []ToolCall) {
	calls := make([]ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				e.log.WithError(err).WithField("tool", tc.Function.Name).Warn("unparseable tool arguments")
				continue
			}
		}
		calls = append(calls, ToolCall{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Args:   args,
			Source: SourceStructured,
		})
	}

	content := msg.Content
	for _, pat := range textCallPatterns {
		for _, match := range pat.re.FindAllStringSubmatch(content, -1) {
			args := map[string]any{}
			for i, key := range pat.args {
				if i+1 < len(match) && match[i+1] != "" {
					args[key] = match[i+1]
				}
			}
			calls = append(calls, ToolCall{
				Name:   pat.name,
				Args:   args,
				Source: SourceText,
			})
		}
		content = pat.re.ReplaceAllString(content, "")
	}

	content = strings.ReplaceAll(content, pythonEndMarker, "")
	return strings.TrimSpace(content), calls
}

// Execute runs one call through the dispatch table. Unknown tools and
// handler failures come back as failed results rather than errors so a
// bad call never aborts the turn.
func (e *Engine) Execute(ctx context.Context, conversationID string, call ToolCall) ToolResult {
	handler, ok := e.handlers[call.Name]
	if !ok {
		e.log.WithField("tool", call.Name).Warn("unknown tool requested")
		return ToolResult{Name: call.Name, Output: map[string]any{"success": false, "error": "unknown tool"}}
	}

	out, err := handler(ctx, conversationID, call.Args)
	if err != nil {
		e.log.WithError(err).WithField("tool", call.Name).Warn("tool execution failed")
		return ToolResult{Name: call.Name, Output: map[string]any{"success": false, "error": err.Error()}}
	}
	return ToolResult{Name: call.Name, Output: out}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func (e *Engine) storeUserInfo(ctx context.Context, conversationID string, args map[string]any) (map[string]any, error) {
	info := stringArg(args, "info")
	if info == "" {
		return nil, fmt.Errorf("info argument is required")
	}
	category := stringArg(args, "category")
	if category == "" {
		category = "general"
	}

	if e.index == nil {
		return map[string]any{"success": false, "results": []any{}}, nil
	}

	userID := storage.DeriveUserID(conversationID)
	err := e.index.Upsert(ctx, knowledge.Entry{
		UserID:   userID,
		Category: category,
		Content:  info,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "stored": info, "category": category}, nil
}

func (e *Engine) recallUserInfo(ctx context.Context, conversationID string, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query argument is required")
	}

	if e.index == nil {
		return map[string]any{"success": false, "results": []any{}}, nil
	}

	userID := storage.DeriveUserID(conversationID)
	hits, err := e.index.Search(ctx, userID, query, knowledge.DefaultTopK)
	if err != nil {
		return nil, err
	}

	results := lo.Map(hits, func(h knowledge.Hit, _ int) any {
		return map[string]any{"content": h.Content, "category": h.Category}
	})
	return map[string]any{"success": true, "results": results}, nil
}

func (e *Engine) searchConversation(ctx context.Context, conversationID string, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query argument is required")
	}
	timeframe := stringArg(args, "timeframe")
	if timeframe == "" {
		timeframe = "all"
	}

	history, err := e.conversations.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	window := timeframeWindow(history, timeframe)
	matches := lo.Filter(window, func(msg types.ConversationMessage, _ int) bool {
		return messageMatches(msg.Content, query)
	})
	if len(matches) == 0 {
		return map[string]any{"found": false, "timeframe": timeframe, "matches": []any{}}, nil
	}

	out := lo.Map(matches, func(msg types.ConversationMessage, _ int) any {
		m := map[string]any{"role": string(msg.Role), "content": msg.Content}
		if msg.Timestamp != nil {
			m["timestamp"] = msg.Timestamp.Format(time.RFC3339)
		}
		return m
	})
	return map[string]any{"found": true, "timeframe": timeframe, "matches": out}, nil
}

// timeframeWindow slices the history per the requested span: the last
// ten messages, the first ten, the middle 30-70% band, or everything.
func timeframeWindow(history []types.ConversationMessage, timeframe string) []types.ConversationMessage {
	n := len(history)
	switch timeframe {
	case "recent":
		if n > 10 {
			return history[n-10:]
		}
		return history
	case "beginning":
		if n > 10 {
			return history[:10]
		}
		return history
	case "middle":
		start := n * 30 / 100
		end := n * 70 / 100
		if start >= end {
			return history
		}
		return history[start:end]
	default:
		return history
	}
}

// messageMatches accepts a whole-phrase substring hit or any individual
// query word longer than three characters. Case-insensitive.
func messageMatches(content, query string) bool {
	contentLower := strings.ToLower(content)
	queryLower := strings.ToLower(query)
	if strings.Contains(contentLower, queryLower) {
		return true
	}
	for _, word := range strings.Fields(queryLower) {
		if len(word) > 3 && strings.Contains(contentLower, word) {
			return true
		}
	}
	return false
}
