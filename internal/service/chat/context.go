package chat

import (
	"strings"

	"github.com/samber/lo"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	// ShortHistoryThreshold is the message count at or below which the
	// full history is sent upstream unmodified.
	ShortHistoryThreshold = 10
	// RecentWindow is how many non-system messages survive compression.
	RecentWindow = 6
)

// TokenEstimator approximates token counts for budget packing. The
// default divides byte length by four; a real tokenizer can be swapped
// in without touching the pipeline.
type TokenEstimator interface {
	Estimate(text string) int
}

type heuristicEstimator struct{}

func (heuristicEstimator) Estimate(text string) int {
	return len(text) / 4
}

// OptimizedContext is the message window chosen for one upstream call.
type OptimizedContext struct {
	Messages         []types.ConversationMessage
	NeedsMemoryTools bool
}

// ContextManager compresses conversation history into the window sent
// upstream.
type ContextManager struct {
	estimator TokenEstimator
}

// NewContextManager creates a manager with the default length-based
// estimator.
func NewContextManager() *ContextManager {
	return &ContextManager{estimator: heuristicEstimator{}}
}

// NewContextManagerWithEstimator creates a manager with a custom
// estimator.
func NewContextManagerWithEstimator(est TokenEstimator) *ContextManager {
	return &ContextManager{estimator: est}
}

// Optimize selects the context window. Short conversations pass through
// whole; longer ones keep every system message plus the most recent
// non-system turns, and flag that memory tools should be offered so the
// model can recover anything the compression dropped.
func (m *ContextManager) Optimize(history []types.ConversationMessage) OptimizedContext {
	if len(history) <= ShortHistoryThreshold {
		return OptimizedContext{Messages: history}
	}

	system := lo.Filter(history, func(msg types.ConversationMessage, _ int) bool {
		return msg.Role == types.RoleSystem
	})
	rest := lo.Filter(history, func(msg types.ConversationMessage, _ int) bool {
		return msg.Role != types.RoleSystem
	})
	if len(rest) > RecentWindow {
		rest = rest[len(rest)-RecentWindow:]
	}

	return OptimizedContext{
		Messages:         append(system, rest...),
		NeedsMemoryTools: true,
	}
}

// OptimizeForBudget packs messages newest-first under a token budget.
// System messages are kept, and charged first, only when their estimated
// cost fits inside the budget; the remaining turns are added from the
// end of the history backward, stopping at the first message that would
// overflow. Returned order is chronological.
func (m *ContextManager) OptimizeForBudget(history []types.ConversationMessage, maxTokens int) OptimizedContext {
	if maxTokens <= 0 {
		return m.Optimize(history)
	}

	system := lo.Filter(history, func(msg types.ConversationMessage, _ int) bool {
		return msg.Role == types.RoleSystem
	})
	rest := lo.Filter(history, func(msg types.ConversationMessage, _ int) bool {
		return msg.Role != types.RoleSystem
	})

	used := 0
	systemCost := lo.SumBy(system, func(msg types.ConversationMessage) int {
		return m.estimator.Estimate(msg.Content)
	})
	if systemCost < maxTokens {
		used = systemCost
	} else {
		system = nil
	}

	var kept []types.ConversationMessage
	for i := len(rest) - 1; i >= 0; i-- {
		cost := m.estimator.Estimate(rest[i].Content)
		if used+cost > maxTokens {
			break
		}
		used += cost
		kept = append([]types.ConversationMessage{rest[i]}, kept...)
	}

	return OptimizedContext{
		Messages:         append(system, kept...),
		NeedsMemoryTools: len(kept) < len(rest),
	}
}

// EstimateTokens exposes the estimator for usage accounting.
func (m *ContextManager) EstimateTokens(text string) int {
	return m.estimator.Estimate(text)
}

// memoryKeywords are prompt fragments that indicate the user is telling
// us something to keep or asking us to recall it. Spanish first, then
// English; matching is case-insensitive substring.
var memoryKeywords = []string{
	"recuerda", "recordar", "memoria", "guarda", "anota", "apunta",
	"mi nombre", "me llamo", "mis datos", "no olvides",
	"remember", "memorize", "my name is", "don't forget", "keep in mind",
	"save this", "note that",
}

// ShouldUseMemoryTools reports whether the prompt itself asks for
// memory, independent of history length.
func ShouldUseMemoryTools(prompt string) bool {
	lower := strings.ToLower(prompt)
	return lo.SomeBy(memoryKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}
