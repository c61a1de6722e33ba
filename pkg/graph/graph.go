// Package graph implements the bitemporal knowledge graph (C4). Facts are
// never deleted: UpsertNode supersedes the current live row
// for a (scope, key) with a new one, carrying forward the higher of the two
// confidence values so confidence only ever ratchets upward across
// supersessions of the same fact. Status is freely updatable and does not
// ratchet.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// ErrFactNotFound is returned when an operation targets a (scope, key) pair
// with no live node.
var ErrFactNotFound = errors.New("graph: fact not found")

// Store reads and writes the nodes and edges tables.
type Store struct {
	db *sqlx.DB
}

// New builds a Store backed by db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// UpsertNode supersedes the current live node for (scopeID, key), if any,
// and inserts a new row carrying forward the higher confidence value. The
// first upsert for a key is a plain insert.
func (s *Store) UpsertNode(ctx context.Context, scopeID, key string, labels []string, content map[string]any, confidence float64, status string) (models.Node, error) {
	if labels == nil {
		labels = []string{}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Node{}, fmt.Errorf("begin upsert node transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current nodeLockRow
	err = tx.GetContext(ctx, &current, `
		SELECT id, confidence FROM nodes
		WHERE scope_id = $1 AND fact_key = $2 AND superseded_at IS NULL
		FOR UPDATE
	`, scopeID, key)

	var priorID string
	hasPrior := false
	effectiveConfidence := confidence
	switch {
	case err == nil:
		priorID = current.ID
		hasPrior = true
		if current.Confidence > effectiveConfidence {
			effectiveConfidence = current.Confidence
		}
	case errors.Is(err, sql.ErrNoRows):
		// first fact under this key
	default:
		return models.Node{}, fmt.Errorf("lock current node for scope %s key %s: %w", scopeID, key, err)
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return models.Node{}, fmt.Errorf("marshal node content: %w", err)
	}

	if hasPrior {
		if _, err := tx.ExecContext(ctx, `UPDATE nodes SET superseded_at = now(), valid_to = now() WHERE id = $1`, priorID); err != nil {
			return models.Node{}, fmt.Errorf("retire prior node %s: %w", priorID, err)
		}
	}

	var inserted nodeInsertRow
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO nodes (scope_id, fact_key, labels, content, confidence, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, valid_from, created_at
	`, scopeID, key, labels, payload, effectiveConfidence, status).StructScan(&inserted)
	if err != nil {
		return models.Node{}, fmt.Errorf("insert node for scope %s key %s: %w", scopeID, key, err)
	}

	if hasPrior {
		_, err = tx.ExecContext(ctx, `
			UPDATE nodes SET superseded_at = now(), superseded_by = $1, valid_to = now()
			WHERE id = $2
		`, inserted.ID, priorID)
		if err != nil {
			return models.Node{}, fmt.Errorf("supersede prior node %s: %w", priorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Node{}, fmt.Errorf("commit upsert node: %w", err)
	}

	return models.Node{
		ID:         inserted.ID,
		ScopeID:    scopeID,
		Key:        key,
		Labels:     labels,
		Content:    content,
		Confidence: effectiveConfidence,
		Status:     status,
		ValidFrom:  inserted.ValidFrom,
		CreatedAt:  inserted.CreatedAt,
	}, nil
}

// UpdateStatus changes the status of the live node for (scopeID, key)
// without touching confidence or creating a new supersession — status is
// mutable working state, not a ratcheted fact.
func (s *Store) UpdateStatus(ctx context.Context, scopeID, key, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET status = $1
		WHERE scope_id = $2 AND fact_key = $3 AND superseded_at IS NULL
	`, status, scopeID, key)
	if err != nil {
		return fmt.Errorf("update status for scope %s key %s: %w", scopeID, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected updating status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: scope %s key %s", ErrFactNotFound, scopeID, key)
	}
	return nil
}

// LiveNodeByKey returns the live node for (scopeID, key), if any.
func (s *Store) LiveNodeByKey(ctx context.Context, scopeID, key string) (models.Node, bool, error) {
	var row fullNodeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, scope_id, fact_key, labels, content, confidence, status, valid_from, valid_to, superseded_at, superseded_by, created_at
		FROM nodes WHERE scope_id = $1 AND fact_key = $2 AND superseded_at IS NULL
	`, scopeID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Node{}, false, nil
	}
	if err != nil {
		return models.Node{}, false, fmt.Errorf("query live node %s for scope %s: %w", key, scopeID, err)
	}
	n, err := row.toModel()
	if err != nil {
		return models.Node{}, false, err
	}
	return n, true, nil
}

// LiveNodes returns every currently-live (non-superseded) node for scopeID.
func (s *Store) LiveNodes(ctx context.Context, scopeID string) ([]models.Node, error) {
	var rows []fullNodeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope_id, fact_key, labels, content, confidence, status, valid_from, valid_to, superseded_at, superseded_by, created_at
		FROM nodes WHERE scope_id = $1 AND superseded_at IS NULL
		ORDER BY created_at ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query live nodes for scope %s: %w", scopeID, err)
	}

	nodes := make([]models.Node, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// History returns every row (live and superseded) ever recorded for
// (scopeID, key), oldest first, so callers can audit how a fact evolved.
func (s *Store) History(ctx context.Context, scopeID, key string) ([]models.Node, error) {
	var rows []fullNodeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope_id, fact_key, labels, content, confidence, status, valid_from, valid_to, superseded_at, superseded_by, created_at
		FROM nodes WHERE scope_id = $1 AND fact_key = $2
		ORDER BY created_at ASC
	`, scopeID, key)
	if err != nil {
		return nil, fmt.Errorf("query history for scope %s key %s: %w", scopeID, key, err)
	}

	nodes := make([]models.Node, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
