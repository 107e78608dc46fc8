package storage

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	conversationPrefix = "conversation:"

	// ConversationTTL is the retention window for conversation history.
	// Expiry is a soft delete enforced by the storage layer.
	ConversationTTL = 7 * 24 * time.Hour

	lockStripes = 64
)

// ConversationRepository persists ordered message logs keyed by
// conversation id. Each append rewrites the full list; a striped
// per-conversation lock serializes writers so concurrent appends to the
// same conversation cannot clobber each other. Writers in other
// processes are not covered by the lock.
type ConversationRepository struct {
	provider Provider
	ttl      time.Duration
	locks    [lockStripes]sync.Mutex
}

// NewConversationRepository creates a repository over the given provider.
func NewConversationRepository(provider Provider) *ConversationRepository {
	return &ConversationRepository{provider: provider, ttl: ConversationTTL}
}

func conversationKey(conversationID string) string {
	return conversationPrefix + conversationID
}

func (r *ConversationRepository) stripe(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return &r.locks[h.Sum32()%lockStripes]
}

// AddMessage appends a message to the conversation, stamping the current
// time when the message carries none. The conversation is implicitly
// created on first append.
func (r *ConversationRepository) AddMessage(ctx context.Context, conversationID string, msg types.ConversationMessage) error {
	mu := r.stripe(conversationID)
	mu.Lock()
	defer mu.Unlock()

	history, err := r.load(ctx, conversationID)
	if err != nil {
		return err
	}

	if msg.Timestamp == nil {
		now := time.Now().UTC()
		msg.Timestamp = &now
	}
	history = append(history, msg)

	data, err := json.Marshal(history)
	if err != nil {
		return types.WrapError(types.CodeStorage, "failed to encode conversation history", err)
	}
	if err := r.provider.Set(ctx, conversationKey(conversationID), string(data), r.ttl); err != nil {
		return types.WrapError(types.CodeStorage, "failed to store conversation history", err)
	}
	return nil
}

// GetHistory returns all messages in insertion order. Unknown
// conversations yield an empty slice, not an error.
func (r *ConversationRepository) GetHistory(ctx context.Context, conversationID string) ([]types.ConversationMessage, error) {
	return r.load(ctx, conversationID)
}

// DeleteConversation removes the conversation's history.
func (r *ConversationRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := r.provider.Delete(ctx, conversationKey(conversationID)); err != nil {
		return types.WrapError(types.CodeStorage, "failed to delete conversation", err)
	}
	return nil
}

// ConversationExists reports whether any history is stored for the id.
func (r *ConversationRepository) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	ok, err := r.provider.Exists(ctx, conversationKey(conversationID))
	if err != nil {
		return false, types.WrapError(types.CodeStorage, "failed to check conversation", err)
	}
	return ok, nil
}

func (r *ConversationRepository) load(ctx context.Context, conversationID string) ([]types.ConversationMessage, error) {
	raw, ok, err := r.provider.Get(ctx, conversationKey(conversationID))
	if err != nil {
		return nil, types.WrapError(types.CodeStorage, "failed to read conversation history", err)
	}
	if !ok {
		return []types.ConversationMessage{}, nil
	}

	var history []types.ConversationMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, types.WrapError(types.CodeStorage, "failed to decode conversation history", err)
	}
	return history, nil
}
