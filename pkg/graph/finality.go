package graph

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

var riskSeverityScore = map[string]float64{
	"low":      0.25,
	"medium":   0.5,
	"high":     0.75,
	"critical": 1.0,
}

func riskSeverity(n models.Node) float64 {
	if v, ok := n.Content["severity"].(string); ok {
		if score, ok := riskSeverityScore[v]; ok {
			return score
		}
	}
	return 0.5
}

// FinalitySnapshot aggregates a scope's live claims, contradictions, goals,
// and risks into the shape the finality evaluator (C8) scores against its
// weighted formula (§4.7).
func (s *Store) FinalitySnapshot(ctx context.Context, scopeID string) (models.FinalitySnapshot, error) {
	nodes, err := s.LiveNodes(ctx, scopeID)
	if err != nil {
		return models.FinalitySnapshot{}, fmt.Errorf("load live nodes for finality snapshot scope %s: %w", scopeID, err)
	}
	edges, err := s.LiveEdges(ctx, scopeID)
	if err != nil {
		return models.FinalitySnapshot{}, fmt.Errorf("load live edges for finality snapshot scope %s: %w", scopeID, err)
	}

	snap := models.FinalitySnapshot{ScopeID: scopeID, GoalsCompletionRatio: 1}

	var claimConfSum float64
	minConf := 1.0
	var goalsTotal, goalsComplete int
	var riskSum float64
	var riskCount int

	for _, n := range nodes {
		switch {
		case containsStr(n.Labels, "claim") && n.Status == "active":
			snap.ClaimsActiveCount++
			claimConfSum += n.Confidence
			if n.Confidence < minConf {
				minConf = n.Confidence
			}
		case containsStr(n.Labels, "goal"):
			if n.Status == "irrelevant" {
				continue
			}
			goalsTotal++
			if n.Status == "completed" {
				goalsComplete++
			}
		case containsStr(n.Labels, "risk") && n.Status == "active":
			riskCount++
			riskSum += riskSeverity(n)
			if v, ok := n.Content["severity"].(string); ok && v == "critical" {
				snap.RisksCriticalActiveCount++
			}
		}
	}

	if snap.ClaimsActiveCount > 0 {
		snap.ClaimsActiveAvgConf = claimConfSum / float64(snap.ClaimsActiveCount)
		snap.ClaimsActiveMinConf = minConf
	}

	if goalsTotal > 0 {
		snap.GoalsCompletionRatio = float64(goalsComplete) / float64(goalsTotal)
	}

	if riskCount > 0 {
		snap.ScopeRiskScore = riskSum / float64(riskCount)
	}

	resolvedTargets := make(map[string]bool)
	for _, e := range edges {
		if e.Relation == "resolves" {
			resolvedTargets[e.ToNodeID] = true
		}
	}
	for _, e := range edges {
		if e.Relation != "contradicts" {
			continue
		}
		snap.ContradictionsTotal++
		if !resolvedTargets[e.FromNodeID] && !resolvedTargets[e.ToNodeID] {
			snap.ContradictionsUnresolved++
		}
	}

	return snap, nil
}
