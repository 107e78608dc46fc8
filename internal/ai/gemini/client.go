// Package gemini is a client for the Gemini generative media APIs:
// image generation, speech synthesis, and long-running video jobs.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 120 * time.Second

	imageModel  = "gemini-2.0-flash-exp-image-generation"
	speechModel = "gemini-2.5-flash-preview-tts"
	videoModel  = "veo-2.0-generate-001"
)

// Client is a Gemini media generation client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Gemini client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Artifact is a generated binary payload with its media type.
type Artifact struct {
	Data     []byte
	MimeType string
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateImage renders a single image for the prompt and returns its
// raw bytes. Style and aspect ratio hints are folded into the prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt, style, aspectRatio string) (*Artifact, error) {
	fullPrompt := prompt
	if style != "" {
		fullPrompt = fmt.Sprintf("%s, in %s style", fullPrompt, style)
	}
	if aspectRatio != "" {
		fullPrompt = fmt.Sprintf("%s, aspect ratio %s", fullPrompt, aspectRatio)
	}

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []contentPart{{Text: fullPrompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var resp generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", imageModel)
	if err := c.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode image data: %w", err)
			}
			return &Artifact{Data: data, MimeType: part.InlineData.MimeType}, nil
		}
	}
	return nil, types.NewAppError(types.CodeExternalAPI, "provider returned no image data", nil)
}

// SynthesizeSpeech converts text to audio using the named prebuilt voice.
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice string) (*Artifact, error) {
	if voice == "" {
		voice = "Kore"
	}

	cfg := &generationConfig{ResponseModalities: []string{"AUDIO"}}
	cfg.SpeechConfig = &speechConfig{}
	cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice

	req := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: []contentPart{{Text: text}}}},
		GenerationConfig: cfg,
	}

	var resp generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", speechModel)
	if err := c.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode audio data: %w", err)
			}
			return &Artifact{Data: data, MimeType: part.InlineData.MimeType}, nil
		}
	}
	return nil, types.NewAppError(types.CodeExternalAPI, "provider returned no audio data", nil)
}

// VideoOperation is the state of a long-running video generation job.
type VideoOperation struct {
	Name     string
	Done     bool
	VideoURI string
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// StartVideoGeneration submits a video job and returns the operation name.
func (c *Client) StartVideoGeneration(ctx context.Context, prompt string) (string, error) {
	req := map[string]any{
		"instances": []map[string]any{{"prompt": prompt}},
		"parameters": map[string]any{
			"aspectRatio": "16:9",
		},
	}

	var resp operationResponse
	path := fmt.Sprintf("/models/%s:predictLongRunning", videoModel)
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", types.NewAppError(types.CodeExternalAPI, "provider returned no operation name", nil)
	}
	return resp.Name, nil
}

// GetOperation fetches the current state of a video job.
func (c *Client) GetOperation(ctx context.Context, name string) (*VideoOperation, error) {
	var resp operationResponse
	if err := c.get(ctx, "/"+name, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, types.NewAppError(types.CodeExternalAPI,
			fmt.Sprintf("video generation failed: %s", resp.Error.Message),
			map[string]any{"provider": "Gemini", "status": resp.Error.Code})
	}

	op := &VideoOperation{Name: resp.Name, Done: resp.Done}
	samples := resp.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) > 0 {
		op.VideoURI = samples[0].Video.URI
	}
	return op, nil
}

// DownloadFile fetches a generated file from its URI.
func (c *Client) DownloadFile(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.WrapError(types.CodeExternalAPI, "download from provider failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.WrapError(types.CodeExternalAPI, "upstream provider unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

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
		"provider":      "Gemini",
		"status":        status,
		"originalError": providerMsg,
	}

	switch status {
	case http.StatusTooManyRequests:
		return types.NewAppError(types.CodeRateLimitExceeded, "upstream request limit exceeded, retry later", details)
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAppError(types.CodeExternalAPI, "authentication with upstream provider failed", details)
	case http.StatusServiceUnavailable:
		return types.NewAppError(types.CodeExternalAPI, "upstream model temporarily unavailable", details)
	default:
		return types.NewAppError(types.CodeExternalAPI, fmt.Sprintf("upstream provider error: %s", providerMsg), details)
	}
}
