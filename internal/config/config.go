package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the gateway-backend service.
type Config struct {
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	Server     ServerConfig
	Storage    StorageConfig
	Knowledge  KnowledgeConfig
	OpenRouter OpenRouterConfig
	Gemini     GeminiConfig
	Media      MediaConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port      string `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// StorageConfig selects the key/value backend for conversations and
// user memory.
type StorageConfig struct {
	Backend  string `envconfig:"STORAGE_BACKEND" default:"auto"`
	RedisURI string `envconfig:"REDIS_URI" default:"redis://localhost:6379"`
}

// KnowledgeConfig holds the optional Postgres knowledge index. When the
// DSN is empty the knowledge base runs on the key/value layer instead.
type KnowledgeConfig struct {
	DatabaseDSN string `envconfig:"KNOWLEDGE_DATABASE_DSN"`
}

// OpenRouterConfig holds the chat provider credentials.
type OpenRouterConfig struct {
	APIKey string `envconfig:"OPENROUTER_API_KEY" required:"true"`
}

// GeminiConfig holds the media provider credentials. Media endpoints
// are disabled when the key is empty.
type GeminiConfig struct {
	APIKey string `envconfig:"GEMINI_API_KEY"`
}

// MediaConfig holds artifact storage and video polling settings.
type MediaConfig struct {
	Dir               string `envconfig:"MEDIA_DIR" default:"./generated-media"`
	VideoPollSeconds  int    `envconfig:"VIDEO_POLL_SECONDS" default:"10"`
	VideoPollAttempts int    `envconfig:"VIDEO_POLL_ATTEMPTS" default:"30"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for logical errors beyond required fields.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisURI == "" {
		return fmt.Errorf("REDIS_URI is required when STORAGE_BACKEND is redis")
	}
	if c.Media.VideoPollAttempts <= 0 {
		return fmt.Errorf("VIDEO_POLL_ATTEMPTS must be positive")
	}
	return nil
}
