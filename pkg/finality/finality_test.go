package finality_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/finality"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

var thresholds = config.FinalityDefaults{NearThreshold: 0.75, AutoThreshold: 0.92}

func TestEvaluate_NoClaimsIsActive(t *testing.T) {
	result := finality.Evaluate(models.FinalitySnapshot{}, thresholds)
	assert.Equal(t, finality.StatusActive, result.Status)
}

func TestEvaluate_Active_LowScores(t *testing.T) {
	snap := models.FinalitySnapshot{
		ClaimsActiveCount:   3,
		ClaimsActiveAvgConf: 0.4,
		ClaimsActiveMinConf: 0.3,
		GoalsCompletionRatio: 0.2,
	}
	result := finality.Evaluate(snap, thresholds)
	assert.Equal(t, finality.StatusActive, result.Status)
	assert.Contains(t, result.Blockers, finality.BlockerLowConfidenceClaims)
	assert.Contains(t, result.Blockers, finality.BlockerMissingGoalResolution)
}

func TestEvaluate_NearFinal_UnresolvedContradictionBlocks(t *testing.T) {
	snap := models.FinalitySnapshot{
		ClaimsActiveCount:        3,
		ClaimsActiveAvgConf:      0.85,
		ClaimsActiveMinConf:      0.7,
		ContradictionsTotal:      2,
		ContradictionsUnresolved: 1,
		GoalsCompletionRatio:     1,
	}
	result := finality.Evaluate(snap, thresholds)
	assert.Equal(t, finality.StatusNear, result.Status)
	assert.Contains(t, result.Blockers, finality.BlockerUnresolvedContradiction)
}

func TestEvaluate_Final_AllDimensionsResolved(t *testing.T) {
	snap := models.FinalitySnapshot{
		ClaimsActiveCount:   5,
		ClaimsActiveAvgConf: 0.85,
		ClaimsActiveMinConf: 0.8,
		ContradictionsTotal: 0,
		GoalsCompletionRatio: 1,
		ScopeRiskScore:      0,
	}
	result := finality.Evaluate(snap, thresholds)
	assert.Equal(t, finality.StatusFinal, result.Status)
	assert.Empty(t, result.Blockers)
}

func TestEvaluate_CriticalRiskBlocksEvenWithHighOverall(t *testing.T) {
	snap := models.FinalitySnapshot{
		ClaimsActiveCount:        5,
		ClaimsActiveAvgConf:      0.85,
		ClaimsActiveMinConf:      0.8,
		ContradictionsTotal:      0,
		GoalsCompletionRatio:     1,
		RisksCriticalActiveCount: 1,
		ScopeRiskScore:           1,
	}
	result := finality.Evaluate(snap, thresholds)
	assert.Contains(t, result.Blockers, finality.BlockerCriticalRisk)
}

func TestEvaluate_WeightsSumToOverall(t *testing.T) {
	snap := models.FinalitySnapshot{
		ClaimsActiveCount:        4,
		ClaimsActiveAvgConf:      0.85,
		ClaimsActiveMinConf:      0.85,
		ContradictionsTotal:      4,
		ContradictionsUnresolved: 2,
		GoalsCompletionRatio:     0.5,
		ScopeRiskScore:           0.4,
	}
	result := finality.Evaluate(snap, thresholds)
	// claim_score=1.0*0.30 + contradiction_score=0.5*0.30 + goal_score=0.5*0.25 + risk_score=0.6*0.15
	assert.InDelta(t, 0.3+0.15+0.125+0.09, result.Overall, 1e-9)
}
