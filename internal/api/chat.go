package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

type generate func(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)

// handleGeneration binds the request, defaults a missing conversation
// id, runs the pipeline and wraps the result in the envelope.
func (s *Server) handleGeneration(c echo.Context, run generate) error {
	started := time.Now()

	var req types.ChatRequest
	if err := c.Bind(&req); err != nil {
		return s.respondValidation(c, "invalid request body", started)
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	resp, err := run(c.Request().Context(), &req)
	if err != nil {
		return s.respondError(c, err, started)
	}
	return s.respond(c, http.StatusOK, resp, started)
}

// Chat handles POST /api/chat.
func (s *Server) Chat(c echo.Context) error {
	return s.handleGeneration(c, s.chatService.Generate)
}

// UncensoredChat handles POST /api/chat/uncensored.
func (s *Server) UncensoredChat(c echo.Context) error {
	return s.handleGeneration(c, s.chatService.GenerateUncensored)
}

// GenerateImage handles POST /api/image.
func (s *Server) GenerateImage(c echo.Context) error {
	if s.mediaService == nil {
		return s.mediaDisabled(c)
	}
	return s.handleGeneration(c, s.mediaService.GenerateImage)
}

// GenerateAudio handles POST /api/audio.
func (s *Server) GenerateAudio(c echo.Context) error {
	if s.mediaService == nil {
		return s.mediaDisabled(c)
	}
	return s.handleGeneration(c, s.mediaService.GenerateAudio)
}

// GenerateVideo handles POST /api/video.
func (s *Server) GenerateVideo(c echo.Context) error {
	if s.mediaService == nil {
		return s.mediaDisabled(c)
	}
	return s.handleGeneration(c, s.mediaService.GenerateVideo)
}

func (s *Server) mediaDisabled(c echo.Context) error {
	return c.JSON(http.StatusNotFound, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: "NOT_FOUND", Message: "media generation is not configured"},
	})
}
