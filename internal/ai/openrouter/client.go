// Package openrouter is a client for the OpenAI-compatible chat
// completions API served by OpenRouter.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 60 * time.Second
)

// Client is an OpenRouter chat completions client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Message is a role/content pair sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolFunction describes one callable function schema.
type ToolFunction struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Parameters  jsonschema.Definition `json:"parameters"`
}

// Tool wraps a function schema in the wire envelope.
type Tool struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function,omitempty"`
}

// NewFunctionTool builds a function tool entry.
func NewFunctionTool(fn ToolFunction) Tool {
	f := fn
	return Tool{Type: "function", Function: &f}
}

// ToolCall is a structured tool invocation returned by the model.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the call target and JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ImagePayload is an inline image attachment on a multimodal response.
type ImagePayload struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// Request is the chat completions request body.
type Request struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
	Temperature         float64   `json:"temperature,omitempty"`
	Tools               []Tool    `json:"tools,omitempty"`
	Modalities          []string  `json:"modalities,omitempty"`
	PromptCacheKey      string    `json:"prompt_cache_key,omitempty"`
}

// ResponseMessage is the assistant message in a choice.
type ResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Images    []ImagePayload `json:"images,omitempty"`
}

// Choice is one completion candidate.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Response is the chat completions response body.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient creates an OpenRouter client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SendChatCompletion issues one chat completions call. Upstream failures
// come back pre-classified as AppErrors per the provider status code.
func (c *Client) SendChatCompletion(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, types.WrapError(types.CodeExternalAPI, "upstream provider unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// classifyStatus converts a provider status code into the fixed error
// taxonomy: 401 auth, 429 rate limit, 503 model unavailable, anything
// else a generic external API error.
func classifyStatus(status int, body []byte) *types.AppError {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	providerMsg := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		providerMsg = apiErr.Error.Message
	}

	details := map[string]any{
		"provider":      "OpenRouter",
		"status":        status,
		"originalError": providerMsg,
	}

	switch status {
	case http.StatusTooManyRequests:
		return types.NewAppError(types.CodeRateLimitExceeded, "upstream request limit exceeded, retry later", details)
	case http.StatusUnauthorized:
		return types.NewAppError(types.CodeExternalAPI, "authentication with upstream provider failed", details)
	case http.StatusServiceUnavailable:
		return types.NewAppError(types.CodeExternalAPI, "upstream model temporarily unavailable", details)
	default:
		return types.NewAppError(types.CodeExternalAPI, fmt.Sprintf("upstream provider error: %s", providerMsg), details)
	}
}
