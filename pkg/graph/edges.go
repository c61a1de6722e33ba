package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// UpsertEdge supersedes the current live edge for (scopeID, fromNodeID,
// toNodeID, relation), if any, carrying forward the higher confidence value,
// the same ratchet rule UpsertNode applies to facts.
func (s *Store) UpsertEdge(ctx context.Context, scopeID, fromNodeID, toNodeID, relation string, confidence float64) (models.Edge, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Edge{}, fmt.Errorf("begin upsert edge transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current edgeLockRow
	err = tx.GetContext(ctx, &current, `
		SELECT id, confidence FROM edges
		WHERE scope_id = $1 AND from_node_id = $2 AND to_node_id = $3 AND relation = $4 AND superseded_at IS NULL
		FOR UPDATE
	`, scopeID, fromNodeID, toNodeID, relation)

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
		// first time this relation is recorded
	default:
		return models.Edge{}, fmt.Errorf("lock current edge %s-%s-%s: %w", fromNodeID, relation, toNodeID, err)
	}

	var inserted edgeInsertRow
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO edges (scope_id, from_node_id, to_node_id, relation, confidence)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, valid_from, created_at
	`, scopeID, fromNodeID, toNodeID, relation, effectiveConfidence).StructScan(&inserted)
	if err != nil {
		return models.Edge{}, fmt.Errorf("insert edge %s-%s-%s: %w", fromNodeID, relation, toNodeID, err)
	}

	if hasPrior {
		_, err = tx.ExecContext(ctx, `
			UPDATE edges SET superseded_at = now(), superseded_by = $1, valid_to = now()
			WHERE id = $2
		`, inserted.ID, priorID)
		if err != nil {
			return models.Edge{}, fmt.Errorf("supersede prior edge %s: %w", priorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Edge{}, fmt.Errorf("commit upsert edge: %w", err)
	}

	return models.Edge{
		ID:         inserted.ID,
		ScopeID:    scopeID,
		FromNodeID: fromNodeID,
		ToNodeID:   toNodeID,
		Relation:   relation,
		Confidence: effectiveConfidence,
		ValidFrom:  inserted.ValidFrom,
		CreatedAt:  inserted.CreatedAt,
	}, nil
}

// LiveEdges returns every currently-live edge for scopeID, regardless of
// which node it originates from.
func (s *Store) LiveEdges(ctx context.Context, scopeID string) ([]models.Edge, error) {
	var rows []fullEdgeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope_id, from_node_id, to_node_id, relation, confidence, valid_from, valid_to, superseded_at, superseded_by, created_at
		FROM edges WHERE scope_id = $1 AND superseded_at IS NULL
		ORDER BY created_at ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query live edges for scope %s: %w", scopeID, err)
	}

	edges := make([]models.Edge, 0, len(rows))
	for _, r := range rows {
		edges = append(edges, r.toModel())
	}
	return edges, nil
}

// LiveEdgesFrom returns every currently-live edge originating at fromNodeID.
func (s *Store) LiveEdgesFrom(ctx context.Context, fromNodeID string) ([]models.Edge, error) {
	var rows []fullEdgeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope_id, from_node_id, to_node_id, relation, confidence, valid_from, valid_to, superseded_at, superseded_by, created_at
		FROM edges WHERE from_node_id = $1 AND superseded_at IS NULL
		ORDER BY created_at ASC
	`, fromNodeID)
	if err != nil {
		return nil, fmt.Errorf("query live edges from %s: %w", fromNodeID, err)
	}

	edges := make([]models.Edge, 0, len(rows))
	for _, r := range rows {
		edges = append(edges, r.toModel())
	}
	return edges, nil
}
