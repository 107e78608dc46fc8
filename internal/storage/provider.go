package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicchat/gateway-backend/internal/storage/memory"
	"github.com/mosaicchat/gateway-backend/internal/storage/redis"
)

// Provider is a key/value store with optional TTL. A zero ttl means the
// value never expires. Implementations must report "not present" for
// expired keys and must surface transport failures as errors distinct
// from absence.
type Provider interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys returns all keys matching pattern, where "*" is a wildcard
	// over the full key string.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Backend names accepted by NewProvider.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	// BackendAuto probes Redis once and falls back to the in-process
	// store when the probe fails.
	BackendAuto = "auto"
)

const probeTimeout = 5 * time.Second

// NewProvider selects a storage backend by name. The second return is
// the backend actually in use, which differs from the requested one
// when auto falls back to memory.
func NewProvider(backend, redisURI string, logger *logrus.Logger) (Provider, string, error) {
	switch backend {
	case BackendMemory, "":
		return memory.New(), BackendMemory, nil
	case BackendRedis:
		client, err := redis.New(redisURI)
		if err != nil {
			return nil, "", fmt.Errorf("connect to redis: %w", err)
		}
		return client, BackendRedis, nil
	case BackendAuto:
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		client, err := redis.NewWithProbe(ctx, redisURI)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, falling back to in-process storage")
			return memory.New(), BackendMemory, nil
		}
		logger.Info("using redis storage backend")
		return client, BackendRedis, nil
	default:
		return nil, "", fmt.Errorf("unknown storage backend %q", backend)
	}
}
