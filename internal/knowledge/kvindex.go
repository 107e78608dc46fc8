package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/mosaicchat/gateway-backend/internal/storage"
)

// KVIndex backs the knowledge contract with the key/value storage layer.
// It is the fallback when no Postgres index is configured: matching is
// substring-based and ranking is recency only.
type KVIndex struct {
	memory *storage.UserMemory
}

// NewKVIndex creates a KVIndex over the given user memory store.
func NewKVIndex(memory *storage.UserMemory) *KVIndex {
	return &KVIndex{memory: memory}
}

func (i *KVIndex) Upsert(ctx context.Context, entry Entry) error {
	if err := i.memory.StoreLongTerm(ctx, entry.UserID, entry.Category, entry.Content); err != nil {
		return fmt.Errorf("store long-term entry: %w", err)
	}
	return nil
}

func (i *KVIndex) Search(ctx context.Context, userID, query string, topK int) ([]Hit, error) {
	if topK <= 0 || topK > DefaultTopK {
		topK = DefaultTopK
	}
	entries, err := i.memory.SearchLongTerm(ctx, userID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("search long-term entries: %w", err)
	}

	// Whole-query matching misses sentence-shaped queries; retry with
	// the individual significant words.
	if len(entries) == 0 {
		entries, err = i.searchByWords(ctx, userID, query, topK)
		if err != nil {
			return nil, err
		}
	}

	return rankedHits(entries), nil
}

// searchByWords runs one search per query word longer than three
// characters, deduplicating by content.
func (i *KVIndex) searchByWords(ctx context.Context, userID, query string, topK int) ([]storage.LongTermEntry, error) {
	var entries []storage.LongTermEntry
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if len(word) <= 3 {
			continue
		}
		matches, err := i.memory.SearchLongTerm(ctx, userID, word, topK)
		if err != nil {
			return nil, fmt.Errorf("search long-term entries: %w", err)
		}
		for _, e := range matches {
			if _, dup := seen[e.Content]; dup {
				continue
			}
			seen[e.Content] = struct{}{}
			entries = append(entries, e)
		}
		if len(entries) >= topK {
			break
		}
	}
	if len(entries) > topK {
		entries = entries[:topK]
	}
	return entries, nil
}

func rankedHits(entries []storage.LongTermEntry) []Hit {
	hits := make([]Hit, 0, len(entries))
	for rank, e := range entries {
		hits = append(hits, Hit{
			Entry: Entry{
				ID:       ContentID(e.Content, e.Category),
				UserID:   e.UserID,
				Category: e.Category,
				Content:  e.Content,
			},
			// Newest first; decay the score by position.
			Score: 1.0 / float64(rank+1),
		})
	}
	return hits
}
