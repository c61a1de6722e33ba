// Package capability defines the narrow tool-invocation abstraction the
// oversight agents use to act on a proposal. There is no inheritance: a
// Capability is a plain record describing one tool, and an Agent is a plain
// record listing the capabilities it may invoke. Composition over
// hierarchy — an agent with new abilities gets a new Capabilities slice,
// never a subclass.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// Capability is a single tool an oversight agent may invoke during the
// governance pipeline's oversight phase (C7 phase two).
type Capability struct {
	ID          string
	Description string
	InputSchema json.RawMessage
	OutputSchema json.RawMessage
	Invoke      func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// ModelConfig pins the model and decoding parameters an agent uses when it
// must consult a language model for a verdict.
type ModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Agent is a named set of instructions, a model configuration, and the
// capabilities it is allowed to invoke. Agents are immutable once
// constructed; routing logic selects an Agent, it does not mutate one.
type Agent struct {
	Name         string
	Instructions string
	ModelConfig  ModelConfig
	Capabilities []Capability
}

// Find returns the capability with the given ID, or false if the agent does
// not carry it.
func (a Agent) Find(id string) (Capability, bool) {
	for _, c := range a.Capabilities {
		if c.ID == id {
			return c, true
		}
	}
	return Capability{}, false
}

// InvokeByID invokes the named capability if the agent carries it.
func (a Agent) InvokeByID(ctx context.Context, id string, input json.RawMessage) (json.RawMessage, error) {
	c, ok := a.Find(id)
	if !ok {
		return nil, fmt.Errorf("capability: agent %q has no capability %q", a.Name, id)
	}
	return c.Invoke(ctx, input)
}

func passthroughInvoke(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
	return input, nil
}

// NewOversightAgent builds the three-capability router the governance
// pipeline's oversight phase consults to pick who decides an
// already-classified proposal: keep the deterministic result, hand it to
// the full governance agent, or put it in front of a human. decide is
// invoked for the escalate_to_llm capability only; the agent never flips
// approve/reject/pending itself, it only picks who does.
func NewOversightAgent(decide func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)) Agent {
	return Agent{
		Name:         "oversight-router",
		Instructions: "Choose who decides this proposal: accept the deterministic result, escalate to the governance agent, or escalate to a human reviewer.",
		Capabilities: []Capability{
			{ID: "accept_deterministic", Description: "keep the deterministic policy result unchanged", Invoke: passthroughInvoke},
			{ID: "escalate_to_llm", Description: "hand the proposal to the governance agent for an independent verdict", Invoke: decide},
			{ID: "escalate_to_human", Description: "force the proposal to pending human review", Invoke: passthroughInvoke},
		},
	}
}

// NewGovernanceAgent builds the seven-capability agent exercised when
// oversight escalates a proposal to a full LLM decider
// (processProposalWithAgent). evaluate backs process_proposal, the only
// capability that actually calls a model; the rest describe the tool
// surface a governance decision reasons over and are invoked for
// traceability even though their effect is already captured elsewhere in
// the pipeline.
func NewGovernanceAgent(evaluate func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)) Agent {
	return Agent{
		Name:         "governance-agent",
		Instructions: "Decide approve, reject, or require_human for the proposal, using the deterministic result and the scope's drift snapshot as context.",
		Capabilities: []Capability{
			{ID: "process_proposal", Description: "produce a final approve/reject/require_human verdict", Invoke: evaluate},
			{ID: "evaluate_transition_rules", Description: "re-check transition_rules against the carried drift snapshot", Invoke: passthroughInvoke},
			{ID: "check_drift", Description: "read the scope's current drift level and types", Invoke: passthroughInvoke},
			{ID: "check_permission", Description: "confirm the proposing agent may act on the target node", Invoke: passthroughInvoke},
			{ID: "record_decision", Description: "note the verdict for audit before commit", Invoke: passthroughInvoke},
			{ID: "publish_action", Description: "describe the action envelope an approve would publish", Invoke: passthroughInvoke},
			{ID: "request_human_review", Description: "describe the question a human reviewer would be asked", Invoke: passthroughInvoke},
		},
	}
}
