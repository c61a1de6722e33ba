// Package models holds the domain types shared across the governance
// pipeline: the write-ahead log entry, the CAS-governed scope state, the
// bitemporal knowledge graph facts, and the proposal/verdict types that
// flow through the three-phase pipeline.
package models

import "time"

// Event is a single write-ahead log entry (C2). Events are never mutated or
// deleted once appended.
type Event struct {
	Seq           int64          `db:"seq" json:"seq"`
	ScopeID       string         `db:"scope_id" json:"scope_id"`
	EventType     string         `db:"event_type" json:"event_type"`
	Actor         string         `db:"actor" json:"actor"`
	CorrelationID string         `db:"correlation_id" json:"correlation_id"`
	Payload       map[string]any `db:"payload" json:"payload"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// ScopeState is the CAS-governed state of a single scope (C5). Advancing it
// requires the caller to present the epoch it last observed; a stale epoch
// is rejected rather than silently overwritten.
type ScopeState struct {
	ScopeID   string         `db:"scope_id" json:"scope_id"`
	Epoch     int64          `db:"epoch" json:"epoch"`
	Status    string         `db:"status" json:"status"`
	Payload   map[string]any `db:"payload" json:"payload"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Node is a bitemporal fact in the knowledge graph (C4). A superseded node
// still exists for history and audit; SupersededAt and SupersededBy point at
// its replacement.
type Node struct {
	ID           string         `db:"id" json:"id"`
	ScopeID      string         `db:"scope_id" json:"scope_id"`
	Key          string         `db:"fact_key" json:"key"`
	Labels       []string       `db:"labels" json:"labels"`
	Content      map[string]any `db:"content" json:"content"`
	Confidence   float64        `db:"confidence" json:"confidence"`
	Status       string         `db:"status" json:"status"`
	ValidFrom    time.Time      `db:"valid_from" json:"valid_from"`
	ValidTo      *time.Time     `db:"valid_to" json:"valid_to,omitempty"`
	SupersededAt *time.Time     `db:"superseded_at" json:"superseded_at,omitempty"`
	SupersededBy *string        `db:"superseded_by" json:"superseded_by,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Edge is a bitemporal relation between two nodes.
type Edge struct {
	ID           string     `db:"id" json:"id"`
	ScopeID      string     `db:"scope_id" json:"scope_id"`
	FromNodeID   string     `db:"from_node_id" json:"from_node_id"`
	ToNodeID     string     `db:"to_node_id" json:"to_node_id"`
	Relation     string     `db:"relation" json:"relation"`
	Confidence   float64    `db:"confidence" json:"confidence"`
	ValidFrom    time.Time  `db:"valid_from" json:"valid_from"`
	ValidTo      *time.Time `db:"valid_to" json:"valid_to,omitempty"`
	SupersededAt *time.Time `db:"superseded_at" json:"superseded_at,omitempty"`
	SupersededBy *string    `db:"superseded_by" json:"superseded_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ProposalMode is the admission policy a proposal is submitted under
// (GLOSSARY: Mode).
type ProposalMode string

const (
	ModeYOLO   ProposalMode = "YOLO"   // autonomous, optional oversight escalation
	ModeMITL   ProposalMode = "MITL"   // always requires a human decision
	ModeMaster ProposalMode = "MASTER" // operator override, bypasses policy
)

// Proposal is a candidate transition submitted to the governance pipeline.
type Proposal struct {
	ScopeID        string         `json:"scope_id"`
	MessageID      string         `json:"message_id"`
	EventType      string         `json:"event_type"`
	Actor          string         `json:"actor"`
	CorrelationID  string         `json:"correlation_id"`
	ProposedAction string         `json:"proposed_action"`
	TargetNode     string         `json:"target_node"`
	ExpectedEpoch  int64          `json:"expected_epoch"`
	Mode           ProposalMode   `json:"mode"`
	FromStatus     string         `json:"from_status"`
	ToStatus       string         `json:"to_status"`
	Confidence     float64        `json:"confidence"`
	Labels         []string       `json:"labels"`
	Payload        map[string]any `json:"payload"`
}

// Decision is the outcome of the three-phase governance pipeline (C7).
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionPending Decision = "pending" // routed to human review
	DecisionIgnore  Decision = "ignore"  // not an advance_state proposal; never committed
)

// WAL event types a governance decision may terminate in (P6).
const (
	EventProposalApproved        = "proposal_approved"
	EventProposalRejected        = "proposal_rejected"
	EventProposalPendingApproval = "proposal_pending_approval"
)

// Governance path tags recorded on every WAL entry the pipeline commits,
// identifying who actually decided the proposal (§4.6).
const (
	PathProcessProposal          = "processProposal"
	PathAcceptDeterministic      = "oversight_acceptDeterministic"
	PathEscalateToLLM            = "oversight_escalateToLLM"
	PathEscalateToHuman          = "oversight_escalateToHuman"
	PathProcessProposalWithAgent = "processProposalWithAgent"
)

// PipelineResult is the full record of a proposal's evaluation.
type PipelineResult struct {
	Proposal         Proposal  `json:"proposal"`
	Reason           string    `json:"reason,omitempty"`
	GovernancePath   string    `json:"governance_path,omitempty"`
	OversightVerdict string    `json:"oversight_verdict,omitempty"`
	Final            Decision  `json:"final"`
	NewEpoch         int64     `json:"new_epoch,omitempty"`
	DecidedAt        time.Time `json:"decided_at"`
}

// FinalitySnapshot is the scope-level aggregate the finality evaluator (C8)
// scores against its weighted formula (§4.7).
type FinalitySnapshot struct {
	ScopeID                  string
	ClaimsActiveCount        int
	ClaimsActiveMinConf      float64
	ClaimsActiveAvgConf      float64
	ContradictionsTotal      int
	ContradictionsUnresolved int
	RisksCriticalActiveCount int
	GoalsCompletionRatio     float64
	ScopeRiskScore           float64
}

// PendingReview is a ranked question raised by the quiescence watchdog
// (C10) when a scope stalls short of finality.
type PendingReview struct {
	ID              string         `db:"id" json:"id"`
	ScopeID         string         `db:"scope_id" json:"scope_id"`
	Question        string         `db:"question" json:"question"`
	Rank            int            `db:"rank" json:"rank"`
	Options         []string       `db:"options" json:"options"`
	Dimension       string         `db:"-" json:"dimension,omitempty"`
	CurrentScore    float64        `db:"-" json:"current_score,omitempty"`
	Weight          float64        `db:"-" json:"weight,omitempty"`
	PotentialGain   float64        `db:"-" json:"potential_gain,omitempty"`
	SuggestedAction string         `db:"-" json:"suggested_action,omitempty"`
	Priority        string         `db:"-" json:"priority,omitempty"`
	Status          string         `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy      *string        `db:"resolved_by" json:"resolved_by,omitempty"`
	Resolution      map[string]any `db:"resolution" json:"resolution,omitempty"`
}

// HatcheryInstance is a single supervised worker instance (C11).
type HatcheryInstance struct {
	ID            string    `db:"id" json:"id"`
	Status        string    `db:"status" json:"status"` // starting, running, draining, stopped
	StartedAt     time.Time `db:"started_at" json:"started_at"`
	LastHeartbeat time.Time `db:"last_heartbeat" json:"last_heartbeat"`
	RestartCount  int       `db:"restart_count" json:"restart_count"`
}
