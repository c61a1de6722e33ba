// Package scoring bridges the finality evaluator (C8) and the convergence
// tracker (C9): it turns one finality evaluation's weighted breakdown into
// the per-dimension snapshot Tracker.Observe expects.
package scoring

import (
	"github.com/codeready-toolchain/swarm-governance/pkg/convergence"
	"github.com/codeready-toolchain/swarm-governance/pkg/finality"
)

// Weights mirror the finality evaluator's own dimension weights (§4.7) so
// the convergence tracker's weighted overall lines up with goal_score_total.
var Weights = map[string]float64{
	"claim_score":         0.30,
	"contradiction_score": 0.30,
	"goal_score":          0.25,
	"risk_score":          0.15,
}

// Snapshot turns one finality evaluation's dimension breakdown into the
// per-dimension round the convergence tracker folds into its running
// EMA/plateau/monotonicity/slope state.
func Snapshot(round int, result finality.Result) convergence.Snapshot {
	return convergence.Snapshot{
		Round: round,
		Scores: map[string]float64{
			"claim_score":         result.Breakdown.ClaimScore,
			"contradiction_score": result.Breakdown.ContradictionScore,
			"goal_score":          result.Breakdown.GoalScore,
			"risk_score":          result.Breakdown.RiskScore,
		},
		Weight: Weights,
	}
}
