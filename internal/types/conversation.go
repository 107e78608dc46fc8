package types

import "time"

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ConversationMessage is a single turn in a conversation. Messages are
// immutable once appended; ordering is insertion order.
type ConversationMessage struct {
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ModelType selects the request's model family.
type ModelType string

const (
	ModelSimple    ModelType = "simple"
	ModelWithTools ModelType = "with_tools"
	ModelMemory    ModelType = "memory"
)

// TaskType is the modality of the requested generation.
type TaskType string

const (
	TaskChat   TaskType = "chat"
	TaskImage  TaskType = "image"
	TaskAudio  TaskType = "audio"
	TaskVideo  TaskType = "video"
	TaskVision TaskType = "vision"
)

// ModelProvider identifies the upstream provider of a model.
type ModelProvider string

const (
	ProviderOpenRouter ModelProvider = "openrouter"
	ProviderOpenAI     ModelProvider = "openai"
	ProviderGemini     ModelProvider = "gemini"
	ProviderCustom     ModelProvider = "custom"
)

// KnownProviders lists every provider the registry accepts.
var KnownProviders = []ModelProvider{ProviderOpenRouter, ProviderOpenAI, ProviderGemini, ProviderCustom}

// ModelCapabilities describes what an upstream model can do.
type ModelCapabilities struct {
	Tools           bool `json:"tools"`
	Vision          bool `json:"vision"`
	Streaming       bool `json:"streaming"`
	ImageGeneration bool `json:"imageGeneration"`
	AudioProcessing bool `json:"audioProcessing"`
	VideoGeneration bool `json:"videoGeneration"`
}

// ModelConfig is a registered upstream model.
type ModelConfig struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Provider        ModelProvider     `json:"provider"`
	Supports        ModelCapabilities `json:"supports"`
	MaxTokens       int               `json:"maxTokens"`
	CostPer1KTokens float64           `json:"costPer1KTokens,omitempty"`
	IsActive        bool              `json:"isActive"`
}

// ChatRequest is the service-level request for one generation turn.
type ChatRequest struct {
	Prompt           string    `json:"prompt"`
	ConversationID   string    `json:"conversationId"`
	ModelType        ModelType `json:"modelType,omitempty"`
	TaskType         TaskType  `json:"taskType,omitempty"`
	UseMemory        bool      `json:"useMemory,omitempty"`
	UseKnowledgeBase bool      `json:"useKnowledgeBase,omitempty"`
	MaxTokens        int       `json:"maxTokens,omitempty"`
	Temperature      float64   `json:"temperature,omitempty"`

	// Media generation knobs; ignored for chat tasks.
	Style       string `json:"style,omitempty"`
	Quality     string `json:"quality,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Voice       string `json:"voice,omitempty"`
}

// GeneratedMedia references an artifact produced by a media task.
type GeneratedMedia struct {
	Type     string            `json:"type"` // "image", "audio" or "video"
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Usage holds approximate token counters for a turn. Counts are derived
// from the length heuristic, not a real tokenizer.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResponse is the result of one generation turn. ToolsUsed is for
// internal observability only and is never rendered verbatim to the user.
type ChatResponse struct {
	ID             string           `json:"id"`
	Message        string           `json:"message"`
	ModelUsed      string           `json:"modelUsed"`
	ToolsUsed      []string         `json:"toolsUsed"`
	ConversationID string           `json:"conversationId"`
	Media          []GeneratedMedia `json:"media,omitempty"`
	Usage          *Usage           `json:"usage,omitempty"`
}
