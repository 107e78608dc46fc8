// Package postgres implements the knowledge index on Postgres with
// full-text search ranking.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaicchat/gateway-backend/internal/knowledge"
)

// Index stores user facts in the knowledge_entries table.
type Index struct {
	pool *pgxpool.Pool
}

// NewIndex creates an Index over the given pool.
func NewIndex(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

// Upsert inserts or replaces an entry keyed by its content-derived id.
func (i *Index) Upsert(ctx context.Context, entry knowledge.Entry) error {
	if entry.ID == "" {
		entry.ID = knowledge.ContentID(entry.Content, entry.Category)
	}
	if entry.Category == "" {
		entry.Category = "general"
	}

	_, err := i.pool.Exec(ctx, `
		INSERT INTO knowledge_entries (id, user_id, category, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    category = EXCLUDED.category,
		    content = EXCLUDED.content,
		    created_at = now()`,
		entry.ID, entry.UserID, entry.Category, entry.Content)
	if err != nil {
		return fmt.Errorf("upsert knowledge entry: %w", err)
	}
	return nil
}

// Search returns up to topK entries for the user ranked by full-text
// relevance, falling back to a substring match for queries the text
// parser rejects.
func (i *Index) Search(ctx context.Context, userID, query string, topK int) ([]knowledge.Hit, error) {
	if topK <= 0 || topK > knowledge.DefaultTopK {
		topK = knowledge.DefaultTopK
	}

	rows, err := i.pool.Query(ctx, `
		SELECT id, user_id, category, content, created_at,
		       ts_rank(ts, websearch_to_tsquery('simple', $2)) AS rank
		FROM knowledge_entries
		WHERE user_id = $1
		  AND (ts @@ websearch_to_tsquery('simple', $2) OR content ILIKE '%' || $2 || '%')
		ORDER BY rank DESC, created_at DESC
		LIMIT $3`,
		userID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("search knowledge entries: %w", err)
	}
	defer rows.Close()

	var hits []knowledge.Hit
	for rows.Next() {
		var h knowledge.Hit
		if err := rows.Scan(&h.ID, &h.UserID, &h.Category, &h.Content, &h.Timestamp, &h.Score); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge entries: %w", err)
	}
	return hits, nil
}
