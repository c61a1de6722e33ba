package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

type nodeLockRow struct {
	ID         string  `db:"id"`
	Confidence float64 `db:"confidence"`
}

type nodeInsertRow struct {
	ID        string    `db:"id"`
	ValidFrom time.Time `db:"valid_from"`
	CreatedAt time.Time `db:"created_at"`
}

type fullNodeRow struct {
	ID           string         `db:"id"`
	ScopeID      string         `db:"scope_id"`
	Key          string         `db:"fact_key"`
	Labels       pq.StringArray `db:"labels"`
	Content      json.RawMessage `db:"content"`
	Confidence   float64        `db:"confidence"`
	Status       string         `db:"status"`
	ValidFrom    time.Time      `db:"valid_from"`
	ValidTo      *time.Time     `db:"valid_to"`
	SupersededAt *time.Time     `db:"superseded_at"`
	SupersededBy *string        `db:"superseded_by"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r fullNodeRow) toModel() (models.Node, error) {
	var content map[string]any
	if len(r.Content) > 0 {
		if err := json.Unmarshal(r.Content, &content); err != nil {
			return models.Node{}, fmt.Errorf("unmarshal content for node %s: %w", r.ID, err)
		}
	}
	return models.Node{
		ID:           r.ID,
		ScopeID:      r.ScopeID,
		Key:          r.Key,
		Labels:       []string(r.Labels),
		Content:      content,
		Confidence:   r.Confidence,
		Status:       r.Status,
		ValidFrom:    r.ValidFrom,
		ValidTo:      r.ValidTo,
		SupersededAt: r.SupersededAt,
		SupersededBy: r.SupersededBy,
		CreatedAt:    r.CreatedAt,
	}, nil
}

type edgeLockRow struct {
	ID         string  `db:"id"`
	Confidence float64 `db:"confidence"`
}

type edgeInsertRow struct {
	ID        string    `db:"id"`
	ValidFrom time.Time `db:"valid_from"`
	CreatedAt time.Time `db:"created_at"`
}

type fullEdgeRow struct {
	ID           string     `db:"id"`
	ScopeID      string     `db:"scope_id"`
	FromNodeID   string     `db:"from_node_id"`
	ToNodeID     string     `db:"to_node_id"`
	Relation     string     `db:"relation"`
	Confidence   float64    `db:"confidence"`
	ValidFrom    time.Time  `db:"valid_from"`
	ValidTo      *time.Time `db:"valid_to"`
	SupersededAt *time.Time `db:"superseded_at"`
	SupersededBy *string    `db:"superseded_by"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (r fullEdgeRow) toModel() models.Edge {
	return models.Edge{
		ID:           r.ID,
		ScopeID:      r.ScopeID,
		FromNodeID:   r.FromNodeID,
		ToNodeID:     r.ToNodeID,
		Relation:     r.Relation,
		Confidence:   r.Confidence,
		ValidFrom:    r.ValidFrom,
		ValidTo:      r.ValidTo,
		SupersededAt: r.SupersededAt,
		SupersededBy: r.SupersededBy,
		CreatedAt:    r.CreatedAt,
	}
}
