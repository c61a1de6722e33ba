// Package governance implements the three-phase governance pipeline (C7):
// deterministic policy evaluation, an oversight phase that decides WHO
// signs off on a deterministic approve, then an atomic commit. Only an
// approved proposal ever advances the scope's CAS state machine; a reject
// or pending outcome is recorded in the write-ahead log without touching
// swarm_state.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/swarm-governance/pkg/capability"
	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/graph"
	"github.com/codeready-toolchain/swarm-governance/pkg/llmclient"
	"github.com/codeready-toolchain/swarm-governance/pkg/metrics"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
	"github.com/codeready-toolchain/swarm-governance/pkg/permission"
	"github.com/codeready-toolchain/swarm-governance/pkg/statemachine"
	"github.com/codeready-toolchain/swarm-governance/pkg/wal"
	"github.com/codeready-toolchain/swarm-governance/pkg/watchdog"
)

// nodeSequence is the fixed cycle a scope's swarm_state status advances
// through on every approved proposal (§4.2): once drift has been checked,
// the next approval starts a fresh ingestion round.
var nodeSequence = []string{"ContextIngested", "FactsExtracted", "DriftChecked"}

// Pipeline evaluates proposals against the three phases in order: policy,
// oversight, commit.
type Pipeline struct {
	cfg        *config.AppConfig
	machine    *statemachine.Machine
	wal        *wal.Store
	graph      *graph.Store
	reviews    *watchdog.Store
	permission *permission.Client
	model      llmclient.ModelService
	metrics    *metrics.Registry

	oversightAgent  capability.Agent
	governanceAgent capability.Agent

	logger *slog.Logger
}

// New builds a Pipeline. model may be nil, in which case any proposal that
// the oversight router would hand to the governance agent is instead
// accepted as the deterministic result. The same happens when a configured
// model returns an error or a malformed verdict.
func New(cfg *config.AppConfig, machine *statemachine.Machine, walStore *wal.Store, graphStore *graph.Store, reviews *watchdog.Store, perm *permission.Client, model llmclient.ModelService, reg *metrics.Registry) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		machine:    machine,
		wal:        walStore,
		graph:      graphStore,
		reviews:    reviews,
		permission: perm,
		model:      model,
		metrics:    reg,
		logger:     slog.Default().With("component", "governance-pipeline"),
	}
	p.oversightAgent = capability.NewOversightAgent(p.decideWithGovernanceAgent)
	p.governanceAgent = capability.NewGovernanceAgent(p.decideWithModel)
	return p
}

// Evaluate runs a proposal through phase A (policy) and, for a deterministic
// approve under YOLO mode, phase B (oversight routing), before committing.
// Evaluate itself performs at most one CAS advance per call.
func (p *Pipeline) Evaluate(ctx context.Context, proposal models.Proposal) (models.PipelineResult, error) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.PipelineLatency.Observe(time.Since(start).Seconds())
		}
	}()

	result := models.PipelineResult{Proposal: proposal}

	// Step 1: only advance_state proposals are governed; anything else is
	// acknowledged without ever being committed.
	if proposal.EventType != "advance_state" {
		result.Final = models.DecisionIgnore
		result.Reason = "not_advance_state"
		return result, nil
	}

	// Step 2: a proposal built against a stale epoch is rejected outright —
	// the proposer observed a state that no longer exists.
	state, err := p.machine.Get(ctx, proposal.ScopeID)
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("read current state for scope %s: %w", proposal.ScopeID, err)
	}
	if proposal.ExpectedEpoch != state.Epoch {
		result.Final = models.DecisionReject
		result.Reason = "epoch_conflict"
		return p.commitDecision(ctx, result)
	}

	// Step 3: load the scope's current drift snapshot and resolve the
	// policy document effective for this scope (mode override included).
	drift := p.currentDrift(ctx, proposal.ScopeID)
	policy := p.cfg.Policy.GetForScope(proposal.ScopeID)

	// Step 4: an operator-submitted MASTER proposal bypasses policy and
	// oversight entirely.
	if proposal.Mode == models.ModeMaster || policy.Mode == string(models.ModeMaster) {
		result.Final = models.DecisionApprove
		result.Reason = "master_override"
		result.GovernancePath = models.PathProcessProposal
		return p.commitDecision(ctx, result)
	}

	// Step 5: the transition-rule engine is the authoritative gate on WHAT
	// a proposal may do.
	if allowed, reason := policy.CanTransition(proposal.FromStatus, proposal.ToStatus, drift); !allowed {
		result.Final = models.DecisionReject
		result.Reason = reason
		if result.Reason == "" {
			result.Reason = "policy_denied"
		}
		if p.metrics != nil {
			p.metrics.PolicyViolations.WithLabelValues(proposal.FromStatus + ">" + proposal.ToStatus).Inc()
		}
		return p.commitDecision(ctx, result)
	}

	// Step 6: the bundled Rego policy is the authoritative gate on WHO may
	// act (pkg/permission sits alongside, not instead of, step 5).
	if p.permission != nil && !p.permission.Allow(ctx, permission.Input{
		AgentID: proposal.Actor, Action: "approve", ScopeID: proposal.ScopeID,
		Labels: proposal.Labels, Confidence: proposal.Confidence,
	}) {
		result.Final = models.DecisionReject
		result.Reason = "permission_denied"
		return p.commitDecision(ctx, result)
	}

	// Step 7: a MITL-mode proposal always requires a human decision; it
	// never reaches the oversight router.
	if proposal.Mode == models.ModeMITL || policy.Mode == string(models.ModeMITL) {
		result.Final = models.DecisionPending
		result.Reason = "mitl_required"
		result.GovernancePath = models.PathProcessProposal
		return p.commitDecision(ctx, result)
	}

	// Step 8: the proposal clears deterministic policy. Under YOLO mode
	// this still goes through the oversight router, which decides who
	// actually signs off.
	result.Final = models.DecisionApprove
	result.Reason = "deterministic_approve"
	return p.routeOversight(ctx, result)
}

// currentDrift reads the scope's drift snapshot node, defaulting to "none"
// when the graph store is unset or the scope has never recorded drift.
func (p *Pipeline) currentDrift(ctx context.Context, scopeID string) config.Drift {
	if p.graph == nil {
		return config.Drift{Level: "none"}
	}
	node, ok, err := p.graph.LiveNodeByKey(ctx, scopeID, "drift")
	if err != nil || !ok {
		return config.Drift{Level: "none"}
	}

	drift := config.Drift{Level: "none"}
	if level, ok := node.Content["level"].(string); ok && level != "" {
		drift.Level = level
	}
	if rawTypes, ok := node.Content["types"].([]any); ok {
		for _, t := range rawTypes {
			if s, ok := t.(string); ok {
				drift.Types = append(drift.Types, s)
			}
		}
	}
	return drift
}

// routeOversight is phase B: result always carries a deterministic approve
// at this point (steps 4-7 commit reject/pending outcomes directly). It
// asks the oversight router which capability decides who actually signs
// off: keep the deterministic result, or escalate to the governance agent
// for an independent verdict.
func (p *Pipeline) routeOversight(ctx context.Context, result models.PipelineResult) (models.PipelineResult, error) {
	if p.metrics != nil {
		p.metrics.OversightRouted.Inc()
	}

	input, err := encodeOversightInput(result.Proposal)
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("encode oversight input for scope %s: %w", result.Proposal.ScopeID, err)
	}

	if p.model == nil {
		if _, err := p.oversightAgent.InvokeByID(ctx, "accept_deterministic", input); err != nil {
			return models.PipelineResult{}, err
		}
		result.GovernancePath = models.PathAcceptDeterministic
		return p.commitDecision(ctx, result)
	}

	output, err := p.oversightAgent.InvokeByID(ctx, "escalate_to_llm", input)
	if err != nil {
		p.logger.Warn("oversight model evaluation failed, accepting deterministic result",
			"scope_id", result.Proposal.ScopeID, "error", err)
		result.GovernancePath = models.PathAcceptDeterministic
		return p.commitDecision(ctx, result)
	}

	var verdict oversightOutput
	if err := json.Unmarshal(output, &verdict); err != nil {
		p.logger.Warn("oversight verdict malformed, accepting deterministic result",
			"scope_id", result.Proposal.ScopeID, "error", err)
		result.GovernancePath = models.PathAcceptDeterministic
		return p.commitDecision(ctx, result)
	}

	result.OversightVerdict = verdict.Decision
	result.GovernancePath = models.PathProcessProposalWithAgent
	switch verdict.Decision {
	case "approve":
		result.Final = models.DecisionApprove
	case "reject":
		result.Final = models.DecisionReject
		result.Reason = "oversight_rejected"
	default:
		if _, err := p.oversightAgent.InvokeByID(ctx, "escalate_to_human", input); err != nil {
			return models.PipelineResult{}, err
		}
		result.Final = models.DecisionPending
		result.Reason = "oversight_escalated"
	}

	return p.commitDecision(ctx, result)
}

// decideWithGovernanceAgent backs the oversight router's escalate_to_llm
// capability: it hands the proposal to the full governance agent and
// returns its verdict untouched.
func (p *Pipeline) decideWithGovernanceAgent(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return p.governanceAgent.InvokeByID(ctx, "process_proposal", input)
}

// decideWithModel backs the governance agent's process_proposal capability.
// It is the only capability in either agent that actually calls a model.
func (p *Pipeline) decideWithModel(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var oi oversightInput
	if err := json.Unmarshal(input, &oi); err != nil {
		return nil, fmt.Errorf("decode oversight input: %w", err)
	}

	verdict, err := p.model.Evaluate(ctx, llmclient.Request{
		SystemPrompt: oversightSystemPrompt(p.cfg.OversightModeFor(oi.ScopeID)),
		UserPrompt:   oversightUserPrompt(oi),
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(oversightOutput{Decision: verdict.Decision, Rationale: verdict.Rationale})
}

// commitDecision dispatches to the phase-C commit path matching result's
// final decision. Only commitApprove ever touches swarm_state.
func (p *Pipeline) commitDecision(ctx context.Context, result models.PipelineResult) (models.PipelineResult, error) {
	switch result.Final {
	case models.DecisionApprove:
		return p.commitApprove(ctx, result)
	case models.DecisionReject:
		return p.commitTerminal(ctx, result, models.EventProposalRejected)
	case models.DecisionPending:
		return p.commitTerminal(ctx, result, models.EventProposalPendingApproval)
	default:
		return result, nil
	}
}

// nextNode advances the fixed ContextIngested -> FactsExtracted ->
// DriftChecked -> ContextIngested cycle. A scope that has never advanced
// (status "new" or empty) is treated as sitting at the first node, so its
// first approval moves it to FactsExtracted.
func nextNode(current string) string {
	for i, n := range nodeSequence {
		if n == current {
			return nodeSequence[(i+1)%len(nodeSequence)]
		}
	}
	return nodeSequence[1]
}

// commitApprove is the only commit path that advances swarm_state; it CAS
// advances the scope to the next node in the fixed cycle and appends
// proposal_approved to the write-ahead log in the same transaction.
func (p *Pipeline) commitApprove(ctx context.Context, result models.PipelineResult) (models.PipelineResult, error) {
	state, err := p.machine.Get(ctx, result.Proposal.ScopeID)
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("read current state for scope %s: %w", result.Proposal.ScopeID, err)
	}

	if result.GovernancePath == "" {
		result.GovernancePath = models.PathProcessProposal
	}

	advanced, event, err := p.machine.Advance(ctx, result.Proposal.ScopeID, state.Epoch, nextNode(state.Status), result.Proposal.Payload, models.Event{
		EventType:     models.EventProposalApproved,
		Actor:         result.Proposal.Actor,
		CorrelationID: result.Proposal.CorrelationID,
		Payload: map[string]any{
			"reason":            result.Reason,
			"governance_path":   result.GovernancePath,
			"oversight_verdict": result.OversightVerdict,
		},
	})
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("commit approval for scope %s: %w", result.Proposal.ScopeID, err)
	}

	if p.metrics != nil {
		p.metrics.ProposalsDecided.WithLabelValues(string(result.Final)).Inc()
	}

	result.NewEpoch = advanced.Epoch
	result.DecidedAt = event.CreatedAt
	return result, nil
}

// commitTerminal is the reject/pending commit path: it appends eventType to
// the write-ahead log directly, without ever touching swarm_state, and —
// for a pending outcome — opens a pending review for human resolution.
func (p *Pipeline) commitTerminal(ctx context.Context, result models.PipelineResult, eventType string) (models.PipelineResult, error) {
	if result.GovernancePath == "" {
		result.GovernancePath = models.PathProcessProposal
	}

	event, err := p.wal.Append(ctx, models.Event{
		ScopeID:       result.Proposal.ScopeID,
		EventType:     eventType,
		Actor:         result.Proposal.Actor,
		CorrelationID: result.Proposal.CorrelationID,
		Payload: map[string]any{
			"reason":            result.Reason,
			"governance_path":   result.GovernancePath,
			"oversight_verdict": result.OversightVerdict,
		},
	})
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("append %s event for scope %s: %w", eventType, result.Proposal.ScopeID, err)
	}

	if p.metrics != nil {
		p.metrics.ProposalsDecided.WithLabelValues(string(result.Final)).Inc()
	}

	if result.Final == models.DecisionPending && p.reviews != nil {
		if _, err := p.reviews.Create(ctx, models.PendingReview{
			ScopeID: result.Proposal.ScopeID,
			Question: fmt.Sprintf("Proposal to advance scope %s from %s to %s requires human approval (%s).",
				result.Proposal.ScopeID, result.Proposal.FromStatus, result.Proposal.ToStatus, result.Reason),
			Rank:    1,
			Options: []string{"approve", "reject"},
		}); err != nil {
			return models.PipelineResult{}, fmt.Errorf("create pending review for scope %s: %w", result.Proposal.ScopeID, err)
		}
	}

	result.DecidedAt = event.CreatedAt
	return result, nil
}

// oversightInput is the JSON envelope capability invocations exchange; it
// carries exactly what an oversight or governance agent needs to reason
// about a proposal, never the proposal's raw payload.
type oversightInput struct {
	ScopeID    string   `json:"scope_id"`
	Actor      string   `json:"actor"`
	FromStatus string   `json:"from_status"`
	ToStatus   string   `json:"to_status"`
	Confidence float64  `json:"confidence"`
	Labels     []string `json:"labels"`
}

// oversightOutput is the verdict a governance-agent capability returns.
type oversightOutput struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
}

func encodeOversightInput(p models.Proposal) (json.RawMessage, error) {
	return json.Marshal(oversightInput{
		ScopeID: p.ScopeID, Actor: p.Actor, FromStatus: p.FromStatus, ToStatus: p.ToStatus,
		Confidence: p.Confidence, Labels: p.Labels,
	})
}

func oversightSystemPrompt(mode string) string {
	return fmt.Sprintf(`You are an oversight reviewer operating in %q mode. Respond with APPROVE, REJECT, or ESCALATE on the first line, followed by a short rationale.`, mode)
}

func oversightUserPrompt(in oversightInput) string {
	return fmt.Sprintf("Proposal from %s: transition scope %s from %s to %s (confidence %.2f, labels %v).",
		in.Actor, in.ScopeID, in.FromStatus, in.ToStatus, in.Confidence, in.Labels)
}
