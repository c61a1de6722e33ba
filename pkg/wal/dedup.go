package wal

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DedupRegistry implements exactly-once effect application for a named
// consumer (C3): a message is claimed once via an INSERT ... ON CONFLICT DO
// NOTHING, and only the goroutine that wins the insert may apply the
// message's effect.
type DedupRegistry struct {
	db           *sqlx.DB
	consumerName string
}

// NewDedupRegistry builds a registry scoped to consumerName. Each durable
// consumer in the bus (C1) should use its own registry instance so that
// redelivery to one consumer never blocks delivery to another.
func NewDedupRegistry(db *sqlx.DB, consumerName string) *DedupRegistry {
	return &DedupRegistry{db: db, consumerName: consumerName}
}

// Claim attempts to record messageID as processed. It returns true if this
// call won the claim (the caller must now apply the effect and ack the
// message), or false if the message was already processed by a prior
// delivery (the caller should ack without reapplying the effect).
func (r *DedupRegistry) Claim(ctx context.Context, messageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_messages (consumer_name, message_id)
		VALUES ($1, $2)
		ON CONFLICT (consumer_name, message_id) DO NOTHING
	`, r.consumerName, messageID)
	if err != nil {
		return false, fmt.Errorf("claim message %s for consumer %s: %w", messageID, r.consumerName, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read rows affected claiming %s: %w", messageID, err)
	}
	return n == 1, nil
}

// ClaimTx is Claim's transactional variant, letting the caller claim the
// message id and apply its effect atomically.
func (r *DedupRegistry) ClaimTx(ctx context.Context, tx *sqlx.Tx, messageID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO processed_messages (consumer_name, message_id)
		VALUES ($1, $2)
		ON CONFLICT (consumer_name, message_id) DO NOTHING
	`, r.consumerName, messageID)
	if err != nil {
		return false, fmt.Errorf("claim message %s for consumer %s: %w", messageID, r.consumerName, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read rows affected claiming %s: %w", messageID, err)
	}
	return n == 1, nil
}

// IsProcessed reports whether messageID has already been claimed by this
// consumer, without claiming it.
func (r *DedupRegistry) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM processed_messages WHERE consumer_name = $1 AND message_id = $2)
	`, r.consumerName, messageID)
	if err != nil {
		return false, fmt.Errorf("check processed state for %s: %w", messageID, err)
	}
	return exists, nil
}
