package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/graph"
)

func TestSyncFacts_InsertsNewClaim(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	result, err := store.SyncFacts(ctx, "scope-sync-1",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "the service is healthy"}, Confidence: 0.6}},
		nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, 0, result.Matched)

	live, err := store.LiveNodes(ctx, "scope-sync-1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, 0.6, live[0].Confidence)
}

func TestSyncFacts_MatchesByContentPrefixAndRatchetsConfidence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SyncFacts(ctx, "scope-sync-2",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "the service is healthy"}, Confidence: 0.5}},
		nil, nil, nil)
	require.NoError(t, err)

	result, err := store.SyncFacts(ctx, "scope-sync-2",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "the service is healthy and fast"}, Confidence: 0.8}},
		nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 0, result.Inserted)

	live, err := store.LiveNodes(ctx, "scope-sync-2")
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, 0.8, live[0].Confidence)
}

func TestSyncFacts_LowerIncomingConfidenceDoesNotRegress(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SyncFacts(ctx, "scope-sync-3",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "budget is on track"}, Confidence: 0.9}},
		nil, nil, nil)
	require.NoError(t, err)

	_, err = store.SyncFacts(ctx, "scope-sync-3",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "budget is on track"}, Confidence: 0.3}},
		nil, nil, nil)
	require.NoError(t, err)

	live, err := store.LiveNodes(ctx, "scope-sync-3")
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, 0.9, live[0].Confidence)
}

func TestSyncFacts_UnmatchedActiveNodeBecomesIrrelevant(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SyncFacts(ctx, "scope-sync-4",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "deploy is stuck"}, Confidence: 0.7}},
		nil, nil, nil)
	require.NoError(t, err)

	result, err := store.SyncFacts(ctx, "scope-sync-4",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "deploy succeeded"}, Confidence: 0.7}},
		nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.MarkedIrrelevant, 1)

	live, err := store.LiveNodes(ctx, "scope-sync-4")
	require.NoError(t, err)
	statuses := map[string]int{}
	for _, n := range live {
		statuses[n.Status]++
	}
	require.Equal(t, 1, statuses["active"])
	require.Equal(t, 1, statuses["irrelevant"])
}

func TestSyncFacts_ReactivatesPreviouslyIrrelevantNode(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SyncFacts(ctx, "scope-sync-5",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "latency is high"}, Confidence: 0.6}},
		nil, nil, nil)
	require.NoError(t, err)

	_, err = store.SyncFacts(ctx, "scope-sync-5",
		[]graph.FactInput{{Labels: []string{"claim"}, Content: map[string]any{"text": "unrelated fact"}, Confidence: 0.6}},
		nil, nil, nil)
	require.NoError(t, err)

	result, err := store.SyncFacts(ctx, "scope-sync-5",
		[]graph.FactInput{
			{Labels: []string{"claim"}, Content: map[string]any{"text": "latency is high"}, Confidence: 0.5},
			{Labels: []string{"claim"}, Content: map[string]any{"text": "unrelated fact"}, Confidence: 0.6},
		},
		nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, result.Matched)

	live, err := store.LiveNodes(ctx, "scope-sync-5")
	require.NoError(t, err)
	for _, n := range live {
		require.Equal(t, "active", n.Status)
	}
}

func TestSyncFacts_ContradictionTextCreatesEdge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	result, err := store.SyncFacts(ctx, "scope-sync-6",
		[]graph.FactInput{
			{Labels: []string{"claim"}, Content: map[string]any{"text": "the deploy is safe"}, Confidence: 0.8},
			{Labels: []string{"claim"}, Content: map[string]any{"text": "the deploy is risky"}, Confidence: 0.8},
		},
		nil, nil,
		[]string{`NLI: "the deploy is safe" vs "the deploy is risky"`})
	require.NoError(t, err)
	require.Len(t, result.ContradictionEdges, 1)
	require.Equal(t, "contradicts", result.ContradictionEdges[0].Relation)
}

func TestSyncFacts_PlainContradictsPhrasing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	result, err := store.SyncFacts(ctx, "scope-sync-7",
		[]graph.FactInput{
			{Labels: []string{"claim"}, Content: map[string]any{"text": "budget is under control"}, Confidence: 0.8},
			{Labels: []string{"claim"}, Content: map[string]any{"text": "budget is overrun"}, Confidence: 0.8},
		},
		nil, nil,
		[]string{"budget is under control contradicts budget is overrun"})
	require.NoError(t, err)
	require.Len(t, result.ContradictionEdges, 1)
}

func TestSyncFacts_NeverRecreatesContradictsEdgeOnceResolved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SyncFacts(ctx, "scope-sync-8",
		[]graph.FactInput{
			{Labels: []string{"claim"}, Content: map[string]any{"text": "claim alpha"}, Confidence: 0.8},
			{Labels: []string{"claim"}, Content: map[string]any{"text": "claim beta"}, Confidence: 0.8},
		},
		nil, nil, nil)
	require.NoError(t, err)

	live, err := store.LiveNodes(ctx, "scope-sync-8")
	require.NoError(t, err)
	require.Len(t, live, 2)

	var alpha, beta string
	for _, n := range live {
		switch n.Content["text"] {
		case "claim alpha":
			alpha = n.ID
		case "claim beta":
			beta = n.ID
		}
	}
	_, err = store.UpsertEdge(ctx, "scope-sync-8", alpha, beta, "resolves", 1.0)
	require.NoError(t, err)

	result, err := store.SyncFacts(ctx, "scope-sync-8", nil, nil, nil,
		[]string{`NLI: "claim alpha" vs "claim beta"`})
	require.NoError(t, err)
	require.Empty(t, result.ContradictionEdges)
}
