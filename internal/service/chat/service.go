// Package chat implements the generation pipeline: context selection,
// model routing, tool execution and conversation persistence.
package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/mosaicchat/gateway-backend/internal/ai/openrouter"
	"github.com/mosaicchat/gateway-backend/internal/knowledge"
	"github.com/mosaicchat/gateway-backend/internal/storage"
	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	defaultSystemPrompt = "You are a helpful, multilingual assistant. Answer naturally and concisely. " +
		"You may have tools available for remembering and recalling user information; use them silently and " +
		"never describe them to the user."

	uncensoredSystemPrompt = "You are an unfiltered assistant. Answer directly and completely without " +
		"adding warnings or disclaimers."

	// followUpInstruction drives the second phase after tool execution.
	followUpInstruction = "Continue the conversation naturally based on what you just did. " +
		"Do not mention tools, functions, or any internal operations."

	// fallbackReply is used when the follow-up phase yields nothing.
	fallbackReply = "Understood, I'll keep that in mind."

	defaultMaxCompletionTokens = 1024

	// maxPromptLength bounds chat prompts; the uncensored endpoint is
	// stricter.
	maxPromptLength           = 4000
	maxUncensoredPromptLength = 2000
)

// ChatCompleter is the upstream chat dependency.
type ChatCompleter interface {
	SendChatCompletion(ctx context.Context, req *openrouter.Request) (*openrouter.Response, error)
}

// Service orchestrates one generation turn end to end.
type Service struct {
	upstream      ChatCompleter
	conversations *storage.ConversationRepository
	contextMgr    *ContextManager
	registry      *Registry
	selector      *Selector
	tools         *Engine
	index         knowledge.Index
	log           *logrus.Entry
}

// NewService wires the pipeline. The knowledge index may be nil; memory
// features then degrade to no-ops.
func NewService(
	upstream ChatCompleter,
	conversations *storage.ConversationRepository,
	contextMgr *ContextManager,
	registry *Registry,
	tools *Engine,
	index knowledge.Index,
) *Service {
	return &Service{
		upstream:      upstream,
		conversations: conversations,
		contextMgr:    contextMgr,
		registry:      registry,
		selector:      NewSelector(registry),
		tools:         tools,
		index:         index,
		log:           logrus.WithField("component", "chat-service"),
	}
}

// Registry exposes the model registry for admin surfaces.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Generate runs one chat turn: persist the user message, pick a model,
// compress context, call upstream, execute any tool calls silently, and
// persist the assistant reply.
func (s *Service) Generate(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	model, err := s.selector.SelectModel(req.ModelType, types.TaskChat, req.UseMemory)
	if err != nil {
		return nil, err
	}

	history, err := s.prepareHistory(ctx, req)
	if err != nil {
		return nil, err
	}

	s.detectPersonalInfo(ctx, req.ConversationID, req.Prompt)

	octx := s.contextMgr.Optimize(history)

	// Each tool schema rides on its own flag: the knowledge base gates
	// store/recall, the memory flag gates conversation search. A
	// compressed window and the prompt keywords widen search only.
	supportsTools := s.selector.SupportsTools(req.ModelType, req.UseMemory)
	offerKnowledge := supportsTools && req.UseKnowledgeBase
	offerSearch := supportsTools &&
		(req.UseMemory || octx.NeedsMemoryTools || ShouldUseMemoryTools(req.Prompt))

	messages := s.spliceRecalledFacts(ctx, req, toWire(octx.Messages))

	upReq := &openrouter.Request{
		Model:               model.ID,
		Messages:            messages,
		MaxCompletionTokens: completionBudget(req, model),
		Temperature:         req.Temperature,
		Tools:               s.tools.Definitions(offerKnowledge, offerSearch),
		PromptCacheKey:      req.ConversationID,
	}

	resp, err := s.upstream.SendChatCompletion(ctx, upReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewAppError(types.CodeExternalAPI, "provider returned no completion", nil)
	}

	content, calls := s.tools.ParseResponse(resp.Choices[0].Message)

	toolsUsed := make([]string, 0, len(calls))
	for _, call := range calls {
		result := s.tools.Execute(ctx, req.ConversationID, call)
		toolsUsed = append(toolsUsed, result.Name)
	}

	// Any executed tool call, or an empty primary reply, triggers the
	// second phase; the follow-up content replaces whatever phase one
	// produced around the calls.
	if len(calls) > 0 || content == "" {
		content = s.followUp(ctx, model, messages)
	}
	if content == "" {
		content = fallbackReply
	}

	if err := s.conversations.AddMessage(ctx, req.ConversationID, types.ConversationMessage{
		Role:    types.RoleAssistant,
		Content: content,
		Metadata: map[string]any{
			"model": model.ID,
		},
	}); err != nil {
		return nil, err
	}

	return &types.ChatResponse{
		ID:             uuid.NewString(),
		Message:        content,
		ModelUsed:      model.ID,
		ToolsUsed:      toolsUsed,
		ConversationID: req.ConversationID,
		Usage:          s.usage(resp, messages, content),
	}, nil
}

// GenerateUncensored runs a turn against the fixed unfiltered model.
// Tools are never offered on this path.
func (s *Service) GenerateUncensored(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Prompt) > maxUncensoredPromptLength {
		return nil, types.NewAppError(types.CodeValidation,
			fmt.Sprintf("prompt exceeds %d characters", maxUncensoredPromptLength), nil)
	}

	model, ok := s.registry.Get(DefaultUncensoredModelID)
	if !ok || !model.IsActive {
		return nil, types.NewAppError(types.CodeModelNotFound, "unfiltered model is not available", nil)
	}

	history, err := s.prepareHistoryWithSystem(ctx, req, uncensoredSystemPrompt)
	if err != nil {
		return nil, err
	}

	octx := s.contextMgr.Optimize(history)
	resp, err := s.upstream.SendChatCompletion(ctx, &openrouter.Request{
		Model:               model.ID,
		Messages:            toWire(octx.Messages),
		MaxCompletionTokens: completionBudget(req, model),
		Temperature:         req.Temperature,
		PromptCacheKey:      req.ConversationID,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewAppError(types.CodeExternalAPI, "provider returned no completion", nil)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := s.conversations.AddMessage(ctx, req.ConversationID, types.ConversationMessage{
		Role:     types.RoleAssistant,
		Content:  content,
		Metadata: map[string]any{"model": model.ID},
	}); err != nil {
		return nil, err
	}

	return &types.ChatResponse{
		ID:             uuid.NewString(),
		Message:        content,
		ModelUsed:      model.ID,
		ToolsUsed:      []string{},
		ConversationID: req.ConversationID,
		Usage:          s.usage(resp, toWire(octx.Messages), content),
	}, nil
}

// History returns the stored messages of a conversation. Unknown ids are
// a not-found error here, unlike the repository which treats them as
// empty.
func (s *Service) History(ctx context.Context, conversationID string) ([]types.ConversationMessage, error) {
	exists, err := s.conversations.ConversationExists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NewAppError(types.CodeConversationNotFound,
			fmt.Sprintf("conversation %q not found", conversationID), nil)
	}
	return s.conversations.GetHistory(ctx, conversationID)
}

// Delete removes a conversation.
func (s *Service) Delete(ctx context.Context, conversationID string) error {
	exists, err := s.conversations.ConversationExists(ctx, conversationID)
	if err != nil {
		return err
	}
	if !exists {
		return types.NewAppError(types.CodeConversationNotFound,
			fmt.Sprintf("conversation %q not found", conversationID), nil)
	}
	return s.conversations.DeleteConversation(ctx, conversationID)
}

func validateRequest(req *types.ChatRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.NewAppError(types.CodeValidation, "prompt is required", nil)
	}
	if len(req.Prompt) > maxPromptLength {
		return types.NewAppError(types.CodeValidation,
			fmt.Sprintf("prompt exceeds %d characters", maxPromptLength), nil)
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return types.NewAppError(types.CodeValidation, "conversationId is required", nil)
	}
	return nil
}

// prepareHistory seeds a new conversation with the default system prompt,
// appends the user message and returns the refreshed history.
func (s *Service) prepareHistory(ctx context.Context, req *types.ChatRequest) ([]types.ConversationMessage, error) {
	return s.prepareHistoryWithSystem(ctx, req, defaultSystemPrompt)
}

func (s *Service) prepareHistoryWithSystem(ctx context.Context, req *types.ChatRequest, systemPrompt string) ([]types.ConversationMessage, error) {
	history, err := s.conversations.GetHistory(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		if err := s.conversations.AddMessage(ctx, req.ConversationID, types.ConversationMessage{
			Role:    types.RoleSystem,
			Content: systemPrompt,
		}); err != nil {
			return nil, err
		}
	}
	if err := s.conversations.AddMessage(ctx, req.ConversationID, types.ConversationMessage{
		Role:    types.RoleUser,
		Content: req.Prompt,
	}); err != nil {
		return nil, err
	}
	return s.conversations.GetHistory(ctx, req.ConversationID)
}

// spliceRecalledFacts injects stored user facts as a system message just
// before the latest user turn when the request opts into the knowledge
// base. Recall failures are logged and skipped.
func (s *Service) spliceRecalledFacts(ctx context.Context, req *types.ChatRequest, messages []openrouter.Message) []openrouter.Message {
	if !req.UseKnowledgeBase || s.index == nil || len(messages) == 0 {
		return messages
	}

	userID := storage.DeriveUserID(req.ConversationID)
	hits, err := s.index.Search(ctx, userID, req.Prompt, knowledge.DefaultTopK)
	if err != nil {
		s.log.WithError(err).Warn("knowledge recall failed")
		return messages
	}
	if len(hits) == 0 {
		return messages
	}

	facts := lo.Map(hits, func(h knowledge.Hit, _ int) string {
		return "- " + h.Content
	})
	note := openrouter.Message{
		Role:    string(types.RoleSystem),
		Content: "Known facts about this user:\n" + strings.Join(facts, "\n"),
	}

	out := make([]openrouter.Message, 0, len(messages)+1)
	out = append(out, messages[:len(messages)-1]...)
	out = append(out, note, messages[len(messages)-1])
	return out
}

// followUp asks the model to produce the user-facing reply after silent
// tool execution. Failures degrade to the fixed fallback.
func (s *Service) followUp(ctx context.Context, model types.ModelConfig, messages []openrouter.Message) string {
	followMsgs := append(append([]openrouter.Message{}, messages...), openrouter.Message{
		Role:    string(types.RoleSystem),
		Content: followUpInstruction,
	})

	resp, err := s.upstream.SendChatCompletion(ctx, &openrouter.Request{
		Model:               model.ID,
		Messages:            followMsgs,
		MaxCompletionTokens: defaultMaxCompletionTokens,
	})
	if err != nil {
		s.log.WithError(err).Warn("follow-up generation failed")
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}
	content, _ := s.tools.ParseResponse(resp.Choices[0].Message)
	return content
}

// Patterns that indicate the user is volunteering personal information.
// Detected facts are stored silently; nothing is surfaced to the user.
var personalInfoPatterns = []struct {
	re       *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)\bme llamo\s+([\p{L}][\p{L}\s'-]{1,40})`), "personal"},
	{regexp.MustCompile(`(?i)\bmy name is\s+([\p{L}][\p{L}\s'-]{1,40})`), "personal"},
	{regexp.MustCompile(`(?i)\bvivo en\s+([\p{L}][\p{L}\s'-]{1,40})`), "personal"},
	{regexp.MustCompile(`(?i)\bi live in\s+([\p{L}][\p{L}\s'-]{1,40})`), "personal"},
	{regexp.MustCompile(`(?i)\bme gusta\s+(.{2,60})`), "preferences"},
}

func (s *Service) detectPersonalInfo(ctx context.Context, conversationID, prompt string) {
	if s.index == nil {
		return
	}
	userID := storage.DeriveUserID(conversationID)
	for _, pat := range personalInfoPatterns {
		match := pat.re.FindStringSubmatch(prompt)
		if match == nil {
			continue
		}
		entry := knowledge.Entry{
			UserID:   userID,
			Category: pat.category,
			Content:  strings.TrimSpace(match[0]),
		}
		if err := s.index.Upsert(ctx, entry); err != nil {
			s.log.WithError(err).Warn("storing detected personal info failed")
		}
	}
}

func completionBudget(req *types.ChatRequest, model types.ModelConfig) int {
	budget := req.MaxTokens
	if budget <= 0 {
		budget = defaultMaxCompletionTokens
	}
	if model.MaxTokens > 0 && budget > model.MaxTokens {
		budget = model.MaxTokens
	}
	return budget
}

func toWire(messages []types.ConversationMessage) []openrouter.Message {
	return lo.Map(messages, func(msg types.ConversationMessage, _ int) openrouter.Message {
		return openrouter.Message{Role: string(msg.Role), Content: msg.Content}
	})
}

// usage prefers provider-reported counters and falls back to the length
// heuristic when the provider omits them.
func (s *Service) usage(resp *openrouter.Response, prompt []openrouter.Message, completion string) *types.Usage {
	if resp.Usage.TotalTokens > 0 {
		return &types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	promptTokens := 0
	for _, msg := range prompt {
		promptTokens += s.contextMgr.EstimateTokens(msg.Content)
	}
	completionTokens := s.contextMgr.EstimateTokens(completion)
	return &types.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
