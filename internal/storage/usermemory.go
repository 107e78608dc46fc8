package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

const (
	scratchPrefix  = "temp:"
	longTermPrefix = "longterm:"

	// ScratchTTL bounds short-lived per-conversation data.
	ScratchTTL = time.Hour
	// LongTermTTL bounds stored user facts in the KV layer.
	LongTermTTL = 30 * 24 * time.Hour
)

// DeriveUserID produces the pseudo-identity used to namespace long-term
// memory. It is a deterministic hash of the conversation id, not real
// authentication.
func DeriveUserID(conversationID string) string {
	sum := sha256.Sum256([]byte(conversationID))
	return hex.EncodeToString(sum[:16])
}

// LongTermEntry is one stored user fact.
type LongTermEntry struct {
	Content   string `json:"content"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
}

// UserMemory stores scratch data (1-hour TTL, per conversation) and
// long-term user facts (30-day TTL, per derived user id) in the KV layer.
type UserMemory struct {
	provider Provider
}

// NewUserMemory creates a UserMemory over the given provider.
func NewUserMemory(provider Provider) *UserMemory {
	return &UserMemory{provider: provider}
}

// SetScratch stores short-lived data under temp:{conversationId}:{key}.
func (m *UserMemory) SetScratch(ctx context.Context, conversationID, key, data string) error {
	storageKey := fmt.Sprintf("%s%s:%s", scratchPrefix, conversationID, key)
	if err := m.provider.Set(ctx, storageKey, data, ScratchTTL); err != nil {
		return types.WrapError(types.CodeStorage, "failed to store scratch data", err)
	}
	return nil
}

// GetScratch reads short-lived data; absence is not an error.
func (m *UserMemory) GetScratch(ctx context.Context, conversationID, key string) (string, bool, error) {
	storageKey := fmt.Sprintf("%s%s:%s", scratchPrefix, conversationID, key)
	val, ok, err := m.provider.Get(ctx, storageKey)
	if err != nil {
		return "", false, types.WrapError(types.CodeStorage, "failed to read scratch data", err)
	}
	return val, ok, nil
}

// StoreLongTerm records a user fact under
// longterm:{userId}:{category}:{timestamp}.
func (m *UserMemory) StoreLongTerm(ctx context.Context, userID, category, content string) error {
	entry := LongTermEntry{
		Content:   content,
		Category:  category,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		UserID:    userID,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return types.WrapError(types.CodeStorage, "failed to encode memory entry", err)
	}
	key := fmt.Sprintf("%s%s:%s:%d", longTermPrefix, userID, category, time.Now().UnixNano())
	if err := m.provider.Set(ctx, key, string(data), LongTermTTL); err != nil {
		return types.WrapError(types.CodeStorage, "failed to store memory entry", err)
	}
	return nil
}

// SearchLongTerm returns up to limit stored facts whose content contains
// the query, newest first. Case-insensitive.
func (m *UserMemory) SearchLongTerm(ctx context.Context, userID, query string, limit int) ([]LongTermEntry, error) {
	pattern := longTermPrefix + userID + ":*"
	keys, err := m.provider.Keys(ctx, pattern)
	if err != nil {
		return nil, types.WrapError(types.CodeStorage, "failed to list memory entries", err)
	}

	queryLower := strings.ToLower(query)
	var matches []LongTermEntry
	for _, key := range keys {
		raw, ok, err := m.provider.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var entry LongTermEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if queryLower == "" || strings.Contains(strings.ToLower(entry.Content), queryLower) {
			matches = append(matches, entry)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp > matches[j].Timestamp
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
