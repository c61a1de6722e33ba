// Package statemachine implements the compare-and-swap scope state machine
// (C5). Every advance is performed in the same database transaction as the
// write-ahead log entry that records it, so a crash between the two can
// never leave an event without a matching state change or vice versa.
package statemachine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
	"github.com/codeready-toolchain/swarm-governance/pkg/wal"
)

// ErrEpochConflict is returned when Advance is called with an epoch that no
// longer matches the stored row: another writer advanced the scope first.
var ErrEpochConflict = errors.New("statemachine: epoch conflict")

// Machine reads and advances swarm_state rows.
type Machine struct {
	db  *sqlx.DB
	wal *wal.Store
}

// New builds a Machine backed by db, appending its WAL entries through w.
func New(db *sqlx.DB, w *wal.Store) *Machine {
	return &Machine{db: db, wal: w}
}

// Get returns the current state for scopeID, or the zero epoch/"new" status
// if the scope has never been advanced.
func (m *Machine) Get(ctx context.Context, scopeID string) (models.ScopeState, error) {
	var row stateRow
	err := m.db.GetContext(ctx, &row, `
		SELECT scope_id, epoch, status, payload, updated_at FROM swarm_state WHERE scope_id = $1
	`, scopeID)
	if errors.Is(err, errNoRows) {
		return models.ScopeState{ScopeID: scopeID, Epoch: 0, Status: "new", Payload: map[string]any{}}, nil
	}
	if err != nil {
		return models.ScopeState{}, fmt.Errorf("read state for scope %s: %w", scopeID, err)
	}
	return row.toModel()
}

// Advance performs the compare-and-swap: the caller must present the epoch
// it last observed (expectedEpoch); if the stored epoch differs the call
// fails with ErrEpochConflict and the caller must re-read and retry. On
// success the state row moves to newStatus/newPayload at expectedEpoch+1 and
// event is appended to the WAL within the same transaction.
func (m *Machine) Advance(ctx context.Context, scopeID string, expectedEpoch int64, newStatus string, newPayload map[string]any, event models.Event) (models.ScopeState, models.Event, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ScopeState{}, models.Event{}, fmt.Errorf("begin advance transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	payload, err := json.Marshal(newPayload)
	if err != nil {
		return models.ScopeState{}, models.Event{}, fmt.Errorf("marshal state payload: %w", err)
	}

	var row stateRow
	nextEpoch := expectedEpoch + 1

	if expectedEpoch == 0 {
		// First transition for this scope: insert rather than CAS-update.
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO swarm_state (scope_id, epoch, status, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (scope_id) DO NOTHING
			RETURNING scope_id, epoch, status, payload, updated_at
		`, scopeID, nextEpoch, newStatus, payload).StructScan(&row)
	} else {
		err = tx.QueryRowxContext(ctx, `
			UPDATE swarm_state
			SET epoch = $1, status = $2, payload = $3, updated_at = now()
			WHERE scope_id = $4 AND epoch = $5
			RETURNING scope_id, epoch, status, payload, updated_at
		`, nextEpoch, newStatus, payload, scopeID, expectedEpoch).StructScan(&row)
	}

	if errors.Is(err, errNoRows) {
		return models.ScopeState{}, models.Event{}, fmt.Errorf("%w: scope %s expected epoch %d", ErrEpochConflict, scopeID, expectedEpoch)
	}
	if err != nil {
		return models.ScopeState{}, models.Event{}, fmt.Errorf("advance scope %s: %w", scopeID, err)
	}

	event.ScopeID = scopeID
	appended, err := m.wal.AppendTx(ctx, tx, event)
	if err != nil {
		return models.ScopeState{}, models.Event{}, fmt.Errorf("append transition event for scope %s: %w", scopeID, err)
	}

	if err := tx.Commit(); err != nil {
		return models.ScopeState{}, models.Event{}, fmt.Errorf("commit advance for scope %s: %w", scopeID, err)
	}

	state, err := row.toModel()
	if err != nil {
		return models.ScopeState{}, models.Event{}, err
	}
	return state, appended, nil
}
