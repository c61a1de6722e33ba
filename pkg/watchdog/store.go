// Package watchdog implements the quiescence watchdog (C10): it polls
// scopes for stalled progress and, when one is found short of finality,
// raises ranked human-in-the-loop questions recorded in pending_reviews.
package watchdog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// ErrNotFound is returned when a review lookup finds nothing.
var ErrNotFound = errors.New("watchdog: pending review not found")

// ErrAlreadyResolved is returned when Resolve is called on a review that
// has already resolved — resolution is irreversible.
var ErrAlreadyResolved = errors.New("watchdog: pending review already resolved")

// Store reads and writes pending_reviews rows.
type Store struct {
	db *sqlx.DB
}

// NewStore builds a Store backed by db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new pending review and returns it with its assigned ID.
func (s *Store) Create(ctx context.Context, review models.PendingReview) (models.PendingReview, error) {
	options, err := json.Marshal(review.Options)
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("marshal review options: %w", err)
	}
	metadata, err := json.Marshal(reviewMetadata{
		Dimension:       review.Dimension,
		CurrentScore:    review.CurrentScore,
		Weight:          review.Weight,
		PotentialGain:   review.PotentialGain,
		SuggestedAction: review.SuggestedAction,
		Priority:        review.Priority,
	})
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("marshal review metadata: %w", err)
	}

	var row reviewRow
	err = s.db.QueryRowxContext(ctx, `
		INSERT INTO pending_reviews (scope_id, question, rank, options, metadata, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, scope_id, question, rank, options, metadata, status, created_at, resolved_at, resolved_by, resolution
	`, review.ScopeID, review.Question, review.Rank, options, metadata).StructScan(&row)
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("insert pending review for scope %s: %w", review.ScopeID, err)
	}

	return row.toModel()
}

// ListPending returns every unresolved review for scopeID, ranked best
// (lowest rank number) first.
func (s *Store) ListPending(ctx context.Context, scopeID string) ([]models.PendingReview, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope_id, question, rank, options, metadata, status, created_at, resolved_at, resolved_by, resolution
		FROM pending_reviews WHERE scope_id = $1 AND status = 'pending'
		ORDER BY rank ASC, created_at ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews for scope %s: %w", scopeID, err)
	}

	reviews := make([]models.PendingReview, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, m)
	}
	return reviews, nil
}

// ListAllPending returns every unresolved review across all scopes, oldest
// first, with reviews created at the same instant ordered best (lowest rank
// number) first — the feed backing the human-review surface's GET /pending.
func (s *Store) ListAllPending(ctx context.Context) ([]models.PendingReview, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope_id, question, rank, options, metadata, status, created_at, resolved_at, resolved_by, resolution
		FROM pending_reviews WHERE status = 'pending'
		ORDER BY created_at ASC, rank ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all pending reviews: %w", err)
	}

	reviews := make([]models.PendingReview, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, m)
	}
	return reviews, nil
}

// CountPending returns the total number of unresolved reviews across all
// scopes, used to drive the pending-reviews gauge.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM pending_reviews WHERE status = 'pending'`)
	if err != nil {
		return 0, fmt.Errorf("count pending reviews: %w", err)
	}
	return count, nil
}

// Resolve marks a pending review resolved exactly once; a second call on an
// already-resolved review fails rather than overwriting the resolution.
func (s *Store) Resolve(ctx context.Context, id, resolvedBy string, resolution map[string]any) (models.PendingReview, error) {
	payload, err := json.Marshal(resolution)
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("marshal resolution: %w", err)
	}

	var row reviewRow
	err = s.db.QueryRowxContext(ctx, `
		UPDATE pending_reviews
		SET status = 'resolved', resolved_at = now(), resolved_by = $1, resolution = $2
		WHERE id = $3 AND status = 'pending'
		RETURNING id, scope_id, question, rank, options, metadata, status, created_at, resolved_at, resolved_by, resolution
	`, resolvedBy, payload, id).StructScan(&row)

	if errors.Is(err, sql.ErrNoRows) {
		existing, lookupErr := s.get(ctx, id)
		if lookupErr != nil {
			return models.PendingReview{}, lookupErr
		}
		return models.PendingReview{}, fmt.Errorf("%w: review %s", ErrAlreadyResolved, existing.ID)
	}
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("resolve review %s: %w", id, err)
	}

	return row.toModel()
}

func (s *Store) get(ctx context.Context, id string) (models.PendingReview, error) {
	var row reviewRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, scope_id, question, rank, options, metadata, status, created_at, resolved_at, resolved_by, resolution
		FROM pending_reviews WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingReview{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("get review %s: %w", id, err)
	}
	return row.toModel()
}

type reviewRow struct {
	ID         string          `db:"id"`
	ScopeID    string          `db:"scope_id"`
	Question   string          `db:"question"`
	Rank       int             `db:"rank"`
	Options    json.RawMessage `db:"options"`
	Metadata   json.RawMessage `db:"metadata"`
	Status     string          `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
	ResolvedAt sql.NullTime    `db:"resolved_at"`
	ResolvedBy sql.NullString  `db:"resolved_by"`
	Resolution json.RawMessage `db:"resolution"`
}

// reviewMetadata is the JSONB-encoded shape of the ranked-question fields
// that do not have their own columns.
type reviewMetadata struct {
	Dimension       string  `json:"dimension,omitempty"`
	CurrentScore    float64 `json:"current_score,omitempty"`
	Weight          float64 `json:"weight,omitempty"`
	PotentialGain   float64 `json:"potential_gain,omitempty"`
	SuggestedAction string  `json:"suggested_action,omitempty"`
	Priority        string  `json:"priority,omitempty"`
}

func (r reviewRow) toModel() (models.PendingReview, error) {
	var options []string
	if len(r.Options) > 0 {
		if err := json.Unmarshal(r.Options, &options); err != nil {
			return models.PendingReview{}, fmt.Errorf("unmarshal options for review %s: %w", r.ID, err)
		}
	}

	var meta reviewMetadata
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return models.PendingReview{}, fmt.Errorf("unmarshal metadata for review %s: %w", r.ID, err)
		}
	}

	m := models.PendingReview{
		ID: r.ID, ScopeID: r.ScopeID, Question: r.Question, Rank: r.Rank,
		Options: options, Status: r.Status, CreatedAt: r.CreatedAt,
		Dimension: meta.Dimension, CurrentScore: meta.CurrentScore, Weight: meta.Weight,
		PotentialGain: meta.PotentialGain, SuggestedAction: meta.SuggestedAction, Priority: meta.Priority,
	}
	if r.ResolvedAt.Valid {
		m.ResolvedAt = &r.ResolvedAt.Time
	}
	if r.ResolvedBy.Valid {
		m.ResolvedBy = &r.ResolvedBy.String
	}
	if len(r.Resolution) > 0 {
		var res map[string]any
		if err := json.Unmarshal(r.Resolution, &res); err != nil {
			return models.PendingReview{}, fmt.Errorf("unmarshal resolution for review %s: %w", r.ID, err)
		}
		m.Resolution = res
	}
	return m, nil
}
