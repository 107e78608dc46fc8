package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mosaicchat/gateway-backend/internal/ai/gemini"
	"github.com/mosaicchat/gateway-backend/internal/ai/openrouter"
	"github.com/mosaicchat/gateway-backend/internal/api"
	"github.com/mosaicchat/gateway-backend/internal/config"
	"github.com/mosaicchat/gateway-backend/internal/knowledge"
	knowledgepg "github.com/mosaicchat/gateway-backend/internal/knowledge/postgres"
	"github.com/mosaicchat/gateway-backend/internal/media"
	"github.com/mosaicchat/gateway-backend/internal/service"
	"github.com/mosaicchat/gateway-backend/internal/service/chat"
	"github.com/mosaicchat/gateway-backend/internal/storage"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Configure log format
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.Info("starting gateway-backend server")

	ctx := context.Background()

	// Select the key/value backend
	provider, storageBackend, err := storage.NewProvider(cfg.Storage.Backend, cfg.Storage.RedisURI, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize storage")
	}

	// Initialize repositories
	convRepo := storage.NewConversationRepository(provider)
	userMemory := storage.NewUserMemory(provider)

	// Knowledge index: Postgres when configured, key/value otherwise
	var index knowledge.Index
	knowledgeKind := "kv"
	if cfg.Knowledge.DatabaseDSN != "" {
		knowledgeKind = "postgres"
		db, err := knowledgepg.New(ctx, cfg.Knowledge.DatabaseDSN)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to knowledge database")
		}
		defer db.Close()
		index = knowledgepg.NewIndex(db.Pool())
		logger.Info("using postgres knowledge index")
	} else {
		index = knowledge.NewKVIndex(userMemory)
		logger.Info("using key/value knowledge index")
	}

	// Initialize services
	authService := service.NewAuthService(cfg.Server.JWTSecret)

	registry := chat.DefaultRegistry()
	chatClient := openrouter.NewClient(cfg.OpenRouter.APIKey)
	toolEngine := chat.NewEngine(convRepo, index)
	chatService := chat.NewService(chatClient, convRepo, chat.NewContextManager(), registry, toolEngine, index)

	var mediaService *chat.MediaService
	mediaStore, err := media.NewStore(cfg.Media.Dir)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize media storage")
	}
	if cfg.Gemini.APIKey != "" {
		mediaClient := gemini.NewClient(cfg.Gemini.APIKey)
		mediaService = chat.NewMediaService(mediaClient, mediaStore, convRepo, userMemory, registry)
		mediaService.SetPolling(time.Duration(cfg.Media.VideoPollSeconds)*time.Second, cfg.Media.VideoPollAttempts)
	} else {
		logger.Warn("no media provider configured, media endpoints disabled")
	}

	// Initialize API server
	server := api.NewServer(authService, chatService, mediaService, logger)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Add middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Info("request")
			return nil
		},
	}))

	// Health check endpoint (public)
	e.GET("/healthz", api.Health(api.HealthStatus{
		Storage:   storageBackend,
		Knowledge: knowledgeKind,
		Media:     mediaService != nil,
	}))

	// Generated artifacts (public)
	e.Static(media.URLPrefix, mediaStore.Root())

	// Gateway routes (authenticated)
	apiGroup := e.Group("/api", server.AuthMiddleware)
	apiGroup.POST("/chat", server.Chat)
	apiGroup.POST("/chat/uncensored", server.UncensoredChat)
	apiGroup.POST("/image", server.GenerateImage)
	apiGroup.POST("/audio", server.GenerateAudio)
	apiGroup.POST("/video", server.GenerateVideo)
	apiGroup.GET("/conversations/:id", server.GetConversation)
	apiGroup.DELETE("/conversations/:id", server.DeleteConversation)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	logger.Info("server stopped")
}
