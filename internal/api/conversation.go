package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

// ConversationResponse is the payload for reading a conversation.
type ConversationResponse struct {
	ConversationID string                      `json:"conversationId"`
	Messages       []types.ConversationMessage `json:"messages"`
	MessageCount   int                         `json:"messageCount"`
}

// GetConversation handles GET /api/conversations/:id.
func (s *Server) GetConversation(c echo.Context) error {
	started := time.Now()

	id := c.Param("id")
	if id == "" {
		return s.respondValidation(c, "conversation id is required", started)
	}

	messages, err := s.chatService.History(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err, started)
	}

	return s.respond(c, http.StatusOK, ConversationResponse{
		ConversationID: id,
		Messages:       messages,
		MessageCount:   len(messages),
	}, started)
}

// DeleteConversation handles DELETE /api/conversations/:id.
func (s *Server) DeleteConversation(c echo.Context) error {
	started := time.Now()

	id := c.Param("id")
	if id == "" {
		return s.respondValidation(c, "conversation id is required", started)
	}

	if err := s.chatService.Delete(c.Request().Context(), id); err != nil {
		return s.respondError(c, err, started)
	}

	return s.respond(c, http.StatusOK, map[string]any{"deleted": true}, started)
}
