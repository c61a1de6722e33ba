package hatchery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// EventStore persists hatchery lifecycle decisions to hatchery_events, the
// audit trail for every scale-up, scale-down, heartbeat timeout, and
// restart across every supervised role.
type EventStore struct {
	db *sqlx.DB
}

// NewEventStore builds an EventStore backed by db.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// Record appends one lifecycle event.
func (s *EventStore) Record(ctx context.Context, role, action string, before, after int, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal hatchery event detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hatchery_events (role, action, instance_count_before, instance_count_after, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, role, action, before, after, payload)
	if err != nil {
		return fmt.Errorf("insert hatchery event for role %s: %w", role, err)
	}
	return nil
}

// HatcheryEvent is one recorded lifecycle decision.
type HatcheryEvent struct {
	ID                  int64          `db:"id"`
	Role                string         `db:"role"`
	Action              string         `db:"action"`
	InstanceCountBefore int             `db:"instance_count_before"`
	InstanceCountAfter  int             `db:"instance_count_after"`
	Detail              json.RawMessage `db:"detail"`
	CreatedAt           time.Time       `db:"created_at"`
}

// Recent returns the most recent events for role, newest first, capped at
// limit.
func (s *EventStore) Recent(ctx context.Context, role string, limit int) ([]HatcheryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []HatcheryEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, role, action, instance_count_before, instance_count_after, detail, created_at
		FROM hatchery_events WHERE role = $1 ORDER BY created_at DESC LIMIT $2
	`, role, limit)
	if err != nil {
		return nil, fmt.Errorf("list hatchery events for role %s: %w", role, err)
	}
	return events, nil
}
