// Package finality implements the weighted finality evaluator (C8): it
// scores a scope's live claims, contradictions, goals, and risks against a
// fixed formula and classifies the scope as active, near-final, or final
// (§4.7).
package finality

import (
	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// Status is a scope's finality classification.
type Status string

const (
	StatusActive Status = "active"
	StatusNear   Status = "near_final"
	StatusFinal  Status = "final"
)

// Blocker names one reason a near-final scope has not yet auto-resolved.
type Blocker string

const (
	BlockerUnresolvedContradiction Blocker = "unresolved_contradiction"
	BlockerCriticalRisk            Blocker = "critical_risk"
	BlockerLowConfidenceClaims     Blocker = "low_confidence_claims"
	BlockerMissingGoalResolution   Blocker = "missing_goal_resolution"
)

// Breakdown holds the four weighted dimension scores the Overall figure is
// computed from.
type Breakdown struct {
	ClaimScore         float64
	ContradictionScore float64
	GoalScore          float64
	RiskScore          float64
}

// Result is one scope's finality evaluation.
type Result struct {
	Status    Status
	Overall   float64
	Breakdown Breakdown
	Blockers  []Blocker
}

const (
	claimWeight         = 0.30
	contradictionWeight = 0.30
	goalWeight          = 0.25
	riskWeight          = 0.15

	claimConfidenceTarget       = 0.85
	lowConfidenceClaimThreshold = 0.5
)

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Evaluate scores snapshot against the weighted formula: claim_score
// (0.30) + contradiction_score (0.30) + goal_score (0.25) + risk_score
// (0.15). A scope with no active claims is always active — there is
// nothing yet to finalize.
func Evaluate(snapshot models.FinalitySnapshot, thresholds config.FinalityDefaults) Result {
	if snapshot.ClaimsActiveCount == 0 {
		return Result{Status: StatusActive}
	}

	claimScore := minF(snapshot.ClaimsActiveAvgConf/claimConfidenceTarget, 1)

	contradictionScore := 1.0
	if snapshot.ContradictionsTotal > 0 {
		contradictionScore = 1 - float64(snapshot.ContradictionsUnresolved)/float64(snapshot.ContradictionsTotal)
	}

	goalScore := snapshot.GoalsCompletionRatio
	riskScore := 1 - minF(snapshot.ScopeRiskScore, 1)

	overall := claimWeight*claimScore + contradictionWeight*contradictionScore + goalWeight*goalScore + riskWeight*riskScore

	var blockers []Blocker
	if snapshot.ContradictionsUnresolved > 0 {
		blockers = append(blockers, BlockerUnresolvedContradiction)
	}
	if snapshot.RisksCriticalActiveCount > 0 {
		blockers = append(blockers, BlockerCriticalRisk)
	}
	if snapshot.ClaimsActiveMinConf < lowConfidenceClaimThreshold {
		blockers = append(blockers, BlockerLowConfidenceClaims)
	}
	if goalScore < 1 {
		blockers = append(blockers, BlockerMissingGoalResolution)
	}

	result := Result{
		Overall:   overall,
		Breakdown: Breakdown{claimScore, contradictionScore, goalScore, riskScore},
		Blockers:  blockers,
	}

	switch {
	case overall >= thresholds.AutoThreshold:
		result.Status = StatusFinal
	case overall >= thresholds.NearThreshold:
		result.Status = StatusNear
	default:
		result.Status = StatusActive
	}
	return result
}
