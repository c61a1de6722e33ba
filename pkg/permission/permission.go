// Package permission evaluates whether an agent may act on a proposal
// against a bundled Rego policy. It sits alongside, not instead of, the YAML
// transition-rule policy engine (C6): the transition rules decide WHAT
// happens to a proposal, this decides WHO is allowed to trigger it.
package permission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Input describes the permission check the bundled policy must answer.
type Input struct {
	AgentID    string   `json:"agent_id"`
	Action     string   `json:"action"`
	ScopeID    string   `json:"scope_id"`
	Labels     []string `json:"labels"`
	Confidence float64  `json:"confidence"`
}

// Client evaluates permission queries against a compiled Rego module.
type Client struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// DefaultModule is the bundled policy used when the caller does not supply
// its own. It permits any agent to propose and read, and requires the
// "oversight" role for approve/reject actions.
const DefaultModule = `
package swarm.permission

default allow := false

allow if {
	input.action in {"propose", "read"}
}

allow if {
	input.action in {"approve", "reject"}
	input.agent_id in data.oversight_agents
}
`

// New compiles regoModule (pass DefaultModule if the caller has no
// override) and prepares it for repeated evaluation.
func New(ctx context.Context, regoModule string, data map[string]any) (*Client, error) {
	r := rego.New(
		rego.Query("data.swarm.permission.allow"),
		rego.Module("permission.rego", regoModule),
		rego.Store(inmemStore(data)),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare permission policy: %w", err)
	}

	return &Client{query: query, logger: slog.Default().With("component", "permission-client")}, nil
}

// Allow evaluates the policy for in. On any evaluator error it fails open —
// logging the error and returning true — because a broken policy evaluator
// must never become an outage for the whole governance pipeline; the
// deterministic transition-rule engine (C6) remains the authoritative gate
// on WHAT a proposal may do.
func (c *Client) Allow(ctx context.Context, in Input) bool {
	results, err := c.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		c.logger.Error("permission evaluation failed, failing open", "error", err, "agent_id", in.AgentID, "action", in.Action)
		return true
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		c.logger.Warn("permission policy produced no result, failing open", "agent_id", in.AgentID, "action", in.Action)
		return true
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		c.logger.Warn("permission policy returned a non-boolean result, failing open", "agent_id", in.AgentID)
		return true
	}

	return allowed
}
