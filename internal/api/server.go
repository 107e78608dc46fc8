package api

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicchat/gateway-backend/internal/service"
	"github.com/mosaicchat/gateway-backend/internal/service/chat"
)

// Server holds API dependencies. The media service may be nil when no
// media provider is configured; its routes then answer 404.
type Server struct {
	authService  *service.AuthService
	chatService  *chat.Service
	mediaService *chat.MediaService
	logger       *logrus.Logger
}

// NewServer creates a new API server.
func NewServer(authService *service.AuthService, chatService *chat.Service, mediaService *chat.MediaService, logger *logrus.Logger) *Server {
	return &Server{
		authService:  authService,
		chatService:  chatService,
		mediaService: mediaService,
		logger:       logger,
	}
}
