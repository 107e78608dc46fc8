package chat

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mosaicchat/gateway-backend/internal/ai/gemini"
	"github.com/mosaicchat/gateway-backend/internal/media"
	"github.com/mosaicchat/gateway-backend/internal/storage"
	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	// DefaultVideoPollInterval is the wait between video job polls.
	DefaultVideoPollInterval = 10 * time.Second
	// DefaultVideoPollAttempts bounds how many polls a job gets before
	// the request fails as timed out.
	DefaultVideoPollAttempts = 30
)

// MediaClient is the upstream media generation dependency.
type MediaClient interface {
	GenerateImage(ctx context.Context, prompt, style, aspectRatio string) (*gemini.Artifact, error)
	SynthesizeSpeech(ctx context.Context, text, voice string) (*gemini.Artifact, error)
	StartVideoGeneration(ctx context.Context, prompt string) (string, error)
	GetOperation(ctx context.Context, name string) (*gemini.VideoOperation, error)
	DownloadFile(ctx context.Context, uri string) ([]byte, error)
}

// MediaService generates images, audio and video, persists the
// artifacts to disk and records the turns in the conversation.
type MediaService struct {
	client        MediaClient
	store         *media.Store
	conversations *storage.ConversationRepository
	memory        *storage.UserMemory
	selector      *Selector
	pollInterval  time.Duration
	pollAttempts  int
	log           *logrus.Entry
}

// NewMediaService wires the media pipeline with default polling.
func NewMediaService(client MediaClient, store *media.Store, conversations *storage.ConversationRepository, memory *storage.UserMemory, registry *Registry) *MediaService {
	return &MediaService{
		client:        client,
		store:         store,
		conversations: conversations,
		memory:        memory,
		selector:      NewSelector(registry),
		pollInterval:  DefaultVideoPollInterval,
		pollAttempts:  DefaultVideoPollAttempts,
		log:           logrus.WithField("component", "media-service"),
	}
}

// SetPolling overrides the video poll interval and attempt cap.
func (s *MediaService) SetPolling(interval time.Duration, attempts int) {
	s.pollInterval = interval
	s.pollAttempts = attempts
}

// GenerateImage renders an image for the prompt and returns its URL.
func (s *MediaService) GenerateImage(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	model, err := s.selector.SelectModel(req.ModelType, types.TaskImage, req.UseMemory)
	if err != nil {
		return nil, err
	}

	artifact, err := s.client.GenerateImage(ctx, req.Prompt, req.Style, req.AspectRatio)
	if err != nil {
		return nil, err
	}

	url, err := s.store.Save(media.KindImage, artifact.Data, media.ExtForMime(artifact.MimeType))
	if err != nil {
		return nil, types.WrapError(types.CodeStorage, "failed to persist generated image", err)
	}

	return s.finishTurn(ctx, req, model, types.GeneratedMedia{
		Type: "image",
		URL:  url,
		Metadata: map[string]string{
			"mimeType": artifact.MimeType,
			"style":    req.Style,
		},
	})
}

// GenerateAudio synthesizes speech for the prompt text.
func (s *MediaService) GenerateAudio(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	model, err := s.selector.SelectModel(req.ModelType, types.TaskAudio, req.UseMemory)
	if err != nil {
		return nil, err
	}

	artifact, err := s.client.SynthesizeSpeech(ctx, req.Prompt, req.Voice)
	if err != nil {
		return nil, err
	}

	url, err := s.store.Save(media.KindAudio, artifact.Data, media.ExtForMime(artifact.MimeType))
	if err != nil {
		return nil, types.WrapError(types.CodeStorage, "failed to persist generated audio", err)
	}

	return s.finishTurn(ctx, req, model, types.GeneratedMedia{
		Type: "audio",
		URL:  url,
		Metadata: map[string]string{
			"mimeType": artifact.MimeType,
			"voice":    req.Voice,
		},
	})
}

// GenerateVideo submits a video job and polls until it completes or the
// attempt cap is reached. Hitting the cap is a terminal upstream error,
// not a retryable state.
func (s *MediaService) GenerateVideo(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	model, err := s.selector.SelectModel(req.ModelType, types.TaskVideo, req.UseMemory)
	if err != nil {
		return nil, err
	}

	opName, err := s.client.StartVideoGeneration(ctx, req.Prompt)
	if err != nil {
		return nil, err
	}
	log := s.log.WithField("operation", opName)

	// Track the pending job so an interrupted request can be diagnosed.
	if err := s.memory.SetScratch(ctx, req.ConversationID, "lastVideoOperation", opName); err != nil {
		log.WithError(err).Warn("failed to record pending video operation")
	}

	var videoURI string
	for attempt := 1; attempt <= s.pollAttempts; attempt++ {
		op, err := s.client.GetOperation(ctx, opName)
		if err != nil {
			return nil, err
		}
		if op.Done {
			if op.VideoURI == "" {
				return nil, types.NewAppError(types.CodeExternalAPI, "video job finished without output", nil)
			}
			videoURI = op.VideoURI
			break
		}
		log.WithField("attempt", attempt).Debug("video job still running")

		if attempt < s.pollAttempts {
			if err := sleepCtx(ctx, s.pollInterval); err != nil {
				return nil, err
			}
		}
	}
	if videoURI == "" {
		return nil, types.NewAppError(types.CodeExternalAPI,
			fmt.Sprintf("video generation timed out after %d polls", s.pollAttempts), nil)
	}

	data, err := s.client.DownloadFile(ctx, videoURI)
	if err != nil {
		return nil, err
	}
	url, err := s.store.Save(media.KindVideo, data, ".mp4")
	if err != nil {
		return nil, types.WrapError(types.CodeStorage, "failed to persist generated video", err)
	}

	return s.finishTurn(ctx, req, model, types.GeneratedMedia{
		Type:     "video",
		URL:      url,
		Metadata: map[string]string{"operation": opName},
	})
}

// finishTurn records the prompt and the artifact reference in the
// conversation and builds the response.
func (s *MediaService) finishTurn(ctx context.Context, req *types.ChatRequest, model types.ModelConfig, artifact types.GeneratedMedia) (*types.ChatResponse, error) {
	if err := s.conversations.AddMessage(ctx, req.ConversationID, types.ConversationMessage{
		Role:    types.RoleUser,
		Content: req.Prompt,
	}); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Generated %s: %s", artifact.Type, path.Base(artifact.URL))
	if err := s.conversations.AddMessage(ctx, req.ConversationID, types.ConversationMessage{
		Role:    types.RoleAssistant,
		Content: message,
		Metadata: map[string]any{
			"model":    model.ID,
			"mediaUrl": artifact.URL,
		},
	}); err != nil {
		return nil, err
	}

	return &types.ChatResponse{
		ID:             uuid.NewString(),
		Message:        message,
		ModelUsed:      model.ID,
		ToolsUsed:      []string{},
		ConversationID: req.ConversationID,
		Media:          []types.GeneratedMedia{artifact},
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
