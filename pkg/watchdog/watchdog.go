package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/finality"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
	"github.com/codeready-toolchain/swarm-governance/pkg/scoring"
	"github.com/codeready-toolchain/swarm-governance/pkg/slack"
)

// EventSource is the narrow read surface Watchdog needs from the WAL.
type EventSource interface {
	Tail(ctx context.Context, scopeID string, limit int) ([]models.Event, error)
}

// Notifier is the narrow surface Watchdog needs for human notification,
// implemented by *slack.Service (which is itself nil-safe).
type Notifier interface {
	NotifyReviewRequested(ctx context.Context, req slack.ReviewRequest)
}

// OffenderSource is the narrow read surface Watchdog needs from the graph
// store to give a ranked question concrete, human-readable evidence.
type OffenderSource interface {
	Offenders(ctx context.Context, scopeID, dimension string, limit int) ([]string, error)
}

// Watchdog periodically checks scopes for quiescence — no recorded
// transition within the configured threshold — and raises ranked questions
// when a stalled scope has not reached finality.
type Watchdog struct {
	events    EventSource
	reviews   *Store
	notifier  Notifier
	offenders OffenderSource
	defaults  config.WatchdogDefaults
	logger    *slog.Logger
}

// New builds a Watchdog. offenders may be nil, in which case ranked
// questions are still raised but without offending-fact evidence.
func New(events EventSource, reviews *Store, notifier Notifier, offenders OffenderSource, defaults config.WatchdogDefaults) *Watchdog {
	return &Watchdog{
		events:    events,
		reviews:   reviews,
		notifier:  notifier,
		offenders: offenders,
		defaults:  defaults,
		logger:    slog.Default().With("component", "watchdog"),
	}
}

// Check examines one scope and, if it is stalled and not final, raises
// ranked review questions for it. It returns the reviews it created (empty
// if the scope is not stalled, is already final, or already has a pending
// review outstanding).
func (w *Watchdog) Check(ctx context.Context, scopeID string, result finality.Result, now time.Time) ([]models.PendingReview, error) {
	if result.Status == finality.StatusFinal {
		return nil, nil
	}

	tail, err := w.events.Tail(ctx, scopeID, 1)
	if err != nil {
		return nil, fmt.Errorf("read tail for scope %s: %w", scopeID, err)
	}
	if len(tail) == 0 {
		return nil, nil // no activity yet; nothing to call stalled
	}

	elapsed := now.Sub(tail[0].CreatedAt)
	if elapsed < w.defaults.QuiescenceThreshold {
		return nil, nil
	}

	existing, err := w.reviews.ListPending(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("check existing reviews for scope %s: %w", scopeID, err)
	}
	if len(existing) > 0 {
		return nil, nil // already escalated, awaiting resolution
	}

	questions := RankedQuestions(result, w.defaults.MaxQuestionsPerEscalation)

	created := make([]models.PendingReview, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		if w.offenders != nil {
			if evidence, err := w.offenders.Offenders(ctx, scopeID, q.Dimension, 3); err == nil && len(evidence) > 0 {
				q.Question = fmt.Sprintf("%s (e.g. %s)", q.Question, evidence[0])
			}
		}

		review, err := w.reviews.Create(ctx, models.PendingReview{
			ScopeID: scopeID, Question: q.Question, Rank: q.Rank, Options: q.Options,
			Dimension: q.Dimension, CurrentScore: q.CurrentScore, Weight: q.Weight,
			PotentialGain: q.PotentialGain, SuggestedAction: q.SuggestedAction, Priority: q.Priority,
		})
		if err != nil {
			return created, fmt.Errorf("create review for scope %s: %w", scopeID, err)
		}
		created = append(created, review)

		if w.notifier != nil {
			w.notifier.NotifyReviewRequested(ctx, slack.ReviewRequest{
				ScopeID: scopeID, Question: q.Question, Rank: q.Rank, Options: q.Options,
			})
		}
	}

	w.logger.Info("scope stalled, escalated to human review",
		"scope_id", scopeID, "elapsed", elapsed, "questions", len(created))

	return created, nil
}

// Question is one ranked human-review question derived from a finality
// evaluation's blocking dimensions.
type Question struct {
	Rank            int
	Dimension       string
	CurrentScore    float64
	Weight          float64
	PotentialGain   float64
	Priority        string
	Question        string
	SuggestedAction string
	Options         []string
}

// phaseStep binds one finality blocker to the offender dimension it is
// diagnosed by, the weighted score it carries in the breakdown, and the
// fixed question copy raised for it.
type phaseStep struct {
	blocker         finality.Blocker
	dimension       string
	question        string
	suggestedAction string
	options         []string
	score           func(finality.Breakdown) float64
	weight          float64
}

// phases fixes the order ranked questions are raised in when more than one
// dimension is blocking at once: resolve contradictions first (they
// invalidate claims downstream), then critical risk, then low-confidence
// claims, then incomplete goals.
var phases = []phaseStep{
	{
		blocker:         finality.BlockerUnresolvedContradiction,
		dimension:       "contradiction_resolution",
		question:        "Unresolved contradictions remain in the knowledge graph. How should they be resolved?",
		suggestedAction: "review_contradicting_claims",
		options:         []string{"resolve_in_favor_of_first", "resolve_in_favor_of_second", "request_more_evidence"},
		score:           func(b finality.Breakdown) float64 { return b.ContradictionScore },
		weight:          scoring.Weights["contradiction_score"],
	},
	{
		blocker:         finality.BlockerCriticalRisk,
		dimension:       "risk_score_inverse",
		question:        "A critical risk is still active for this scope. Should work continue?",
		suggestedAction: "review_critical_risks",
		options:         []string{"accept_risk", "mitigate", "abandon"},
		score:           func(b finality.Breakdown) float64 { return b.RiskScore },
		weight:          scoring.Weights["risk_score"],
	},
	{
		blocker:         finality.BlockerLowConfidenceClaims,
		dimension:       "claim_confidence",
		question:        "One or more claims have not reached the confidence needed for finality. How should confidence be raised?",
		suggestedAction: "request_additional_evidence",
		options:         []string{"provide_evidence", "lower_threshold", "discard_claim"},
		score:           func(b finality.Breakdown) float64 { return b.ClaimScore },
		weight:          scoring.Weights["claim_score"],
	},
	{
		blocker:         finality.BlockerMissingGoalResolution,
		dimension:       "goal_completion",
		question:        "Not all goals for this scope have completed. How should the remaining goals be handled?",
		suggestedAction: "review_open_goals",
		options:         []string{"continue", "reprioritize", "mark_complete"},
		score:           func(b finality.Breakdown) float64 { return b.GoalScore },
		weight:          scoring.Weights["goal_score"],
	},
}

const smallEpsilon = 1e-3

// priorityFor classifies the gap between a dimension's current score and 1
// (fully resolved) into a priority band.
func priorityFor(gap float64) string {
	switch {
	case gap > 0.5:
		return "critical"
	case gap > 0.2:
		return "high"
	default:
		return "medium"
	}
}

// RankedQuestions derives up to maxQuestions ranked questions from the
// dimensions blocking finality. Questions are ordered by a fixed phase
// sequence (contradictions, then critical risk, then claim confidence, then
// goal completion) and, within that, by potential_gain descending — the
// dimension finality would gain the most from resolving comes first. A
// scope with no blocking dimensions but still short of finality gets one
// generic question.
func RankedQuestions(result finality.Result, maxQuestions int) []Question {
	if maxQuestions <= 0 {
		maxQuestions = 3
	}

	blocking := make(map[finality.Blocker]bool, len(result.Blockers))
	for _, b := range result.Blockers {
		blocking[b] = true
	}

	if len(blocking) == 0 {
		return []Question{{
			Rank:            1,
			Dimension:       "overall",
			Question:        "Progress has stalled with no specific blocking dimension identified. Should this scope continue autonomously, or does it need reprioritization?",
			SuggestedAction: "review_scope_activity",
			Options:         []string{"continue", "reprioritize", "abandon"},
		}}
	}

	candidates := make([]Question, 0, len(phases))
	for _, p := range phases {
		if !blocking[p.blocker] {
			continue
		}
		score := p.score(result.Breakdown)
		gap := 1 - score
		if gap < 0 {
			gap = 0
		}
		candidates = append(candidates, Question{
			Dimension:       p.dimension,
			CurrentScore:    score,
			Weight:          p.weight,
			PotentialGain:   p.weight * gap,
			Priority:        priorityFor(gap),
			Question:        p.question,
			SuggestedAction: p.suggestedAction,
			Options:         p.options,
		})
	}

	phaseOrder := make(map[string]int, len(phases))
	for i, p := range phases {
		phaseOrder[p.dimension] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := phaseOrder[candidates[i].Dimension], phaseOrder[candidates[j].Dimension]
		if pi != pj {
			return pi < pj
		}
		return candidates[i].PotentialGain > candidates[j].PotentialGain+smallEpsilon
	})

	if len(candidates) > maxQuestions {
		candidates = candidates[:maxQuestions]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}
