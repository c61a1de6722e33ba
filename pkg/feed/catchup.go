// Package feed serves the catchup query a newly (re)connected observer uses
// to replay missed context_events before switching to live delivery. It is
// a thin read adapter over the WAL store — no transport of its own.
package feed

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// CatchupQuerier is the narrow read surface this package depends on,
// implemented by *wal.Store.
type CatchupQuerier interface {
	Since(ctx context.Context, scopeID string, afterSeq int64, limit int) ([]models.Event, error)
	LastSeq(ctx context.Context, scopeID string) (int64, error)
}

// Feed answers catchup queries for one or more scopes.
type Feed struct {
	store CatchupQuerier
}

// New builds a Feed backed by store.
func New(store CatchupQuerier) *Feed {
	return &Feed{store: store}
}

const defaultCatchupLimit = 500

// GetCatchupEvents returns every event for scopeID after sinceSeq, capped at
// limit (defaultCatchupLimit if limit <= 0). A caller that receives exactly
// limit events should request again with the new high-water seq to drain
// any remaining backlog before switching to live delivery.
func (f *Feed) GetCatchupEvents(ctx context.Context, scopeID string, sinceSeq int64, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultCatchupLimit
	}
	events, err := f.store.Since(ctx, scopeID, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("get catchup events for scope %s since %d: %w", scopeID, sinceSeq, err)
	}
	return events, nil
}

// CurrentSeq returns the high-water seq for scopeID, letting a new observer
// start a catchup from "now" rather than from the beginning of history.
func (f *Feed) CurrentSeq(ctx context.Context, scopeID string) (int64, error) {
	seq, err := f.store.LastSeq(ctx, scopeID)
	if err != nil {
		return 0, fmt.Errorf("get current seq for scope %s: %w", scopeID, err)
	}
	return seq, nil
}
