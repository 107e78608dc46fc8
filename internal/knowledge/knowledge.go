// Package knowledge defines the persistent, searchable store of user
// facts. The index is optional infrastructure: callers must tolerate a
// nil Index and degrade instead of failing the conversation turn.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is one stored user fact.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Hit is a ranked search result.
type Hit struct {
	Entry
	Score float64 `json:"score"`
}

// Index stores and searches user facts. Upsert is idempotent per content
// hash; Search returns up to topK hits ranked by relevance.
type Index interface {
	Upsert(ctx context.Context, entry Entry) error
	Search(ctx context.Context, userID, query string, topK int) ([]Hit, error)
}

// DefaultTopK caps search results when the caller passes no limit.
const DefaultTopK = 5

// ContentID derives a stable entry id from content and category, so
// storing the same fact twice updates rather than duplicates.
func ContentID(content, category string) string {
	sum := sha256.Sum256([]byte(content + ":" + category))
	return hex.EncodeToString(sum[:])
}
