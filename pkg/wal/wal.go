// Package wal implements the append-only write-ahead log (C2) and the
// exactly-once processed-message registry (C3) that sits in front of it.
package wal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// ErrNotFound is returned when a lookup by sequence number finds nothing.
var ErrNotFound = errors.New("wal: event not found")

// Store appends and reads context_events rows. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// New builds a Store backed by db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Append inserts a new event and returns it with its assigned sequence
// number. Callers that need the append and a CAS state transition to be
// atomic should use AppendTx within an existing transaction instead.
func (s *Store) Append(ctx context.Context, e models.Event) (models.Event, error) {
	return s.AppendTx(ctx, s.db, e)
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting callers append
// an event inside a transaction that also advances the CAS state machine.
type execer interface {
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

// AppendTx inserts e using tx, which may be the Store's own pool or a
// transaction shared with a state-machine advance.
func (s *Store) AppendTx(ctx context.Context, tx execer, e models.Event) (models.Event, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO context_events (scope_id, event_type, actor, correlation_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, created_at
	`, e.ScopeID, e.EventType, e.Actor, e.CorrelationID, payload)

	if err := row.Scan(&e.Seq, &e.CreatedAt); err != nil {
		return models.Event{}, fmt.Errorf("insert context event: %w", err)
	}

	return e, nil
}

// Since returns up to limit events for scopeID with seq strictly greater
// than afterSeq, ordered oldest first. It backs both the catchup feed and
// the convergence tracker's per-scope replay.
func (s *Store) Since(ctx context.Context, scopeID string, afterSeq int64, limit int) ([]models.Event, error) {
	rows, err := s.queryEvents(ctx, `
		SELECT seq, scope_id, event_type, actor, correlation_id, payload, created_at
		FROM context_events
		WHERE scope_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, scopeID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query events since %d for scope %s: %w", afterSeq, scopeID, err)
	}
	return rows, nil
}

// Tail returns the most recent limit events for scopeID, newest first.
func (s *Store) Tail(ctx context.Context, scopeID string, limit int) ([]models.Event, error) {
	rows, err := s.queryEvents(ctx, `
		SELECT seq, scope_id, event_type, actor, correlation_id, payload, created_at
		FROM context_events
		WHERE scope_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, scopeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query tail for scope %s: %w", scopeID, err)
	}
	return rows, nil
}

// LastSeq returns the highest seq recorded for scopeID, or 0 if none exist.
func (s *Store) LastSeq(ctx context.Context, scopeID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.GetContext(ctx, &seq, `SELECT max(seq) FROM context_events WHERE scope_id = $1`, scopeID)
	if err != nil {
		return 0, fmt.Errorf("query last seq for scope %s: %w", scopeID, err)
	}
	return seq.Int64, nil
}

type eventRow struct {
	Seq           int64           `db:"seq"`
	ScopeID       string          `db:"scope_id"`
	EventType     string          `db:"event_type"`
	Actor         string          `db:"actor"`
	CorrelationID string          `db:"correlation_id"`
	Payload       json.RawMessage `db:"payload"`
	CreatedAt     sql.NullTime    `db:"created_at"`
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		var payload map[string]any
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for seq %d: %w", r.Seq, err)
			}
		}
		events = append(events, models.Event{
			Seq:           r.Seq,
			ScopeID:       r.ScopeID,
			EventType:     r.EventType,
			Actor:         r.Actor,
			CorrelationID: r.CorrelationID,
			Payload:       payload,
			CreatedAt:     r.CreatedAt.Time,
		})
	}
	return events, nil
}
