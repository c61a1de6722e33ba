package database

import (
	"context"
	"fmt"
)

// CreateGINIndexes adds trigram GIN indexes supporting full-text search over
// knowledge graph node content (the content's "text" field) and a GIN index
// over node labels. It is idempotent and safe to call on every startup; the
// embedded migrations create only the labels index, the trigram index is
// created here.
func CreateGINIndexes(ctx context.Context, c *Client) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_content_trgm ON nodes USING GIN ((content->>'text') gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_labels ON nodes USING GIN (labels)`,
	}

	for _, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return nil
}
