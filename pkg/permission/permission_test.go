package permission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/permission"
)

func TestClient_Allow_DefaultModule(t *testing.T) {
	ctx := context.Background()
	client, err := permission.New(ctx, permission.DefaultModule, map[string]any{
		"oversight_agents": []any{"agent-reviewer"},
	})
	require.NoError(t, err)

	assert.True(t, client.Allow(ctx, permission.Input{AgentID: "agent-any", Action: "propose"}))
	assert.True(t, client.Allow(ctx, permission.Input{AgentID: "agent-any", Action: "read"}))
	assert.False(t, client.Allow(ctx, permission.Input{AgentID: "agent-random", Action: "approve"}))
	assert.True(t, client.Allow(ctx, permission.Input{AgentID: "agent-reviewer", Action: "approve"}))
}

func TestNew_MalformedModule_ReturnsError(t *testing.T) {
	ctx := context.Background()
	// Intentionally invalid Rego: New() itself should fail to compile.
	_, err := permission.New(ctx, "not valid rego {{{", nil)
	require.Error(t, err)
}
