package statemachine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

var errNoRows = sql.ErrNoRows

type stateRow struct {
	ScopeID   string          `db:"scope_id"`
	Epoch     int64           `db:"epoch"`
	Status    string          `db:"status"`
	Payload   json.RawMessage `db:"payload"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r stateRow) toModel() (models.ScopeState, error) {
	var payload map[string]any
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return models.ScopeState{}, fmt.Errorf("unmarshal state payload for scope %s: %w", r.ScopeID, err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return models.ScopeState{
		ScopeID:   r.ScopeID,
		Epoch:     r.Epoch,
		Status:    r.Status,
		Payload:   payload,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
