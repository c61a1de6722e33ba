package capability_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/capability"
)

func TestAgent_FindAndInvoke(t *testing.T) {
	echo := capability.Capability{
		ID:          "echo",
		Description: "returns its input unchanged",
		Invoke: func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
			return input, nil
		},
	}

	agent := capability.Agent{Name: "reviewer", Capabilities: []capability.Capability{echo}}

	found, ok := agent.Find("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", found.ID)

	out, err := agent.InvokeByID(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestAgent_InvokeByID_UnknownCapability(t *testing.T) {
	agent := capability.Agent{Name: "reviewer"}
	_, err := agent.InvokeByID(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestNewOversightAgent_HasThreeCapabilities(t *testing.T) {
	agent := capability.NewOversightAgent(func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"decision":"approve"}`), nil
	})

	for _, id := range []string{"accept_deterministic", "escalate_to_llm", "escalate_to_human"} {
		_, ok := agent.Find(id)
		assert.True(t, ok, "expected capability %q", id)
	}
	assert.Len(t, agent.Capabilities, 3)

	out, err := agent.InvokeByID(context.Background(), "escalate_to_llm", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"approve"}`, string(out))
}

func TestNewGovernanceAgent_HasSevenCapabilities(t *testing.T) {
	agent := capability.NewGovernanceAgent(func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	})

	assert.Len(t, agent.Capabilities, 7)
	_, ok := agent.Find("process_proposal")
	assert.True(t, ok)
}
