package governance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/database"
	"github.com/codeready-toolchain/swarm-governance/pkg/governance"
	"github.com/codeready-toolchain/swarm-governance/pkg/graph"
	"github.com/codeready-toolchain/swarm-governance/pkg/llmclient"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
	"github.com/codeready-toolchain/swarm-governance/pkg/permission"
	"github.com/codeready-toolchain/swarm-governance/pkg/statemachine"
	"github.com/codeready-toolchain/swarm-governance/pkg/wal"
	"github.com/codeready-toolchain/swarm-governance/pkg/watchdog"
)

type fakeModel struct {
	verdict llmclient.Verdict
	err     error
}

func (f *fakeModel) Evaluate(_ context.Context, _ llmclient.Request) (llmclient.Verdict, error) {
	return f.verdict, f.err
}

type testEnv struct {
	machine *statemachine.Machine
	wal     *wal.Store
	graph   *graph.Store
	reviews *watchdog.Store
}

func openTestEnv(t *testing.T) testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("swarm_test"),
		postgres.WithUsername("swarm"),
		postgres.WithPassword("swarm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pgContainer.Terminate(ctx)) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := database.Open(ctx, database.Config{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	walStore := wal.New(client.DB)
	return testEnv{
		machine: statemachine.New(client.DB, walStore),
		wal:     walStore,
		graph:   graph.New(client.DB),
		reviews: watchdog.NewStore(client.DB),
	}
}

func testPolicyConfig() *config.AppConfig {
	return &config.AppConfig{Policy: config.PolicyDocument{Version: 1}}
}

func TestPipeline_Evaluate_IgnoresNonAdvanceState(t *testing.T) {
	env := openTestEnv(t)
	p := governance.New(testPolicyConfig(), env.machine, env.wal, env.graph, env.reviews, nil, nil, nil)

	result, err := p.Evaluate(context.Background(), models.Proposal{
		ScopeID: "scope-1", Actor: "agent-a", CorrelationID: "c1", EventType: "submit",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionIgnore, result.Final)
}

func TestPipeline_Evaluate_RejectsStaleEpoch(t *testing.T) {
	env := openTestEnv(t)
	p := governance.New(testPolicyConfig(), env.machine, env.wal, env.graph, env.reviews, nil, nil, nil)

	result, err := p.Evaluate(context.Background(), models.Proposal{
		ScopeID: "scope-2", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		ExpectedEpoch: 5, FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, result.Final)
	require.Equal(t, "epoch_conflict", result.Reason)
}

func TestPipeline_Evaluate_ApprovesDeterministic_NoModel(t *testing.T) {
	env := openTestEnv(t)
	p := governance.New(testPolicyConfig(), env.machine, env.wal, env.graph, env.reviews, nil, nil, nil)

	result, err := p.Evaluate(context.Background(), models.Proposal{
		ScopeID: "scope-3", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, result.Final)
	require.Equal(t, models.PathAcceptDeterministic, result.GovernancePath)
	require.Equal(t, int64(1), result.NewEpoch)

	state, err := env.machine.Get(context.Background(), "scope-3")
	require.NoError(t, err)
	require.Equal(t, "FactsExtracted", state.Status)
}

func TestPipeline_Evaluate_TransitionBlockedByDrift(t *testing.T) {
	env := openTestEnv(t)
	ctx := context.Background()
	_, err := env.graph.UpsertNode(ctx, "scope-4", "drift", []string{"drift"}, map[string]any{"level": "critical"}, 1.0, "active")
	require.NoError(t, err)

	cfg := &config.AppConfig{Policy: config.PolicyDocument{
		Version: 1,
		TransitionRules: []config.TransitionRule{
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"critical"}}, Reason: "drift too high"},
		},
	}}
	p := governance.New(cfg, env.machine, env.wal, env.graph, env.reviews, nil, nil, nil)

	result, err := p.Evaluate(ctx, models.Proposal{
		ScopeID: "scope-4", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, result.Final)
	require.Equal(t, "drift too high", result.Reason)

	state, err := env.machine.Get(ctx, "scope-4")
	require.NoError(t, err)
	require.Equal(t, "new", state.Status) // reject must never touch swarm_state
}

func TestPipeline_Evaluate_PermissionDenied(t *testing.T) {
	env := openTestEnv(t)
	ctx := context.Background()
	perm, err := permission.New(ctx, `
package swarm.permission
default allow := false
`, nil)
	require.NoError(t, err)

	p := governance.New(testPolicyConfig(), env.machine, env.wal, env.graph, env.reviews, perm, nil, nil)

	result, err := p.Evaluate(ctx, models.Proposal{
		ScopeID: "scope-5", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, result.Final)
	require.Equal(t, "permission_denied", result.Reason)
}

func TestPipeline_Evaluate_MITLRequiresHuman(t *testing.T) {
	env := openTestEnv(t)
	ctx := context.Background()
	cfg := &config.AppConfig{Policy: config.PolicyDocument{Version: 1, Mode: "MITL"}}
	p := governance.New(cfg, env.machine, env.wal, env.graph, env.reviews, nil, nil, nil)

	result, err := p.Evaluate(ctx, models.Proposal{
		ScopeID: "scope-6", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionPending, result.Final)
	require.Equal(t, "mitl_required", result.Reason)

	pending, err := env.reviews.ListPending(ctx, "scope-6")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	state, err := env.machine.Get(ctx, "scope-6")
	require.NoError(t, err)
	require.Equal(t, "new", state.Status) // pending must never touch swarm_state
}

func TestPipeline_Evaluate_MasterOverrideBypassesPolicy(t *testing.T) {
	env := openTestEnv(t)
	ctx := context.Background()
	cfg := &config.AppConfig{Policy: config.PolicyDocument{
		Version: 1,
		TransitionRules: []config.TransitionRule{
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"none"}}},
		},
	}}
	p := governance.New(cfg, env.machine, env.wal, env.graph, env.reviews, nil, nil, nil)

	result, err := p.Evaluate(ctx, models.Proposal{
		ScopeID: "scope-7", Actor: "operator", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted", Mode: models.ModeMaster,
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, result.Final)
	require.Equal(t, "master_override", result.Reason)
}

func TestPipeline_Evaluate_OversightModelApproves(t *testing.T) {
	env := openTestEnv(t)
	model := &fakeModel{verdict: llmclient.Verdict{Decision: "approve"}}
	p := governance.New(testPolicyConfig(), env.machine, env.wal, env.graph, env.reviews, nil, model, nil)

	result, err := p.Evaluate(context.Background(), models.Proposal{
		ScopeID: "scope-8", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, result.Final)
	require.Equal(t, "approve", result.OversightVerdict)
	require.Equal(t, models.PathProcessProposalWithAgent, result.GovernancePath)
}

func TestPipeline_Evaluate_OversightModelErrors_AcceptsDeterministic(t *testing.T) {
	env := openTestEnv(t)
	model := &fakeModel{err: context.DeadlineExceeded}
	p := governance.New(testPolicyConfig(), env.machine, env.wal, env.graph, env.reviews, nil, model, nil)

	result, err := p.Evaluate(context.Background(), models.Proposal{
		ScopeID: "scope-9", Actor: "agent-a", CorrelationID: "c1", EventType: "advance_state",
		FromStatus: "ContextIngested", ToStatus: "FactsExtracted",
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, result.Final)
	require.Equal(t, models.PathAcceptDeterministic, result.GovernancePath)
}
