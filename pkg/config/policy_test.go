package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/swarm-governance/pkg/config"
)

func TestCanTransition_AllowsWhenNoRuleMatches(t *testing.T) {
	doc := config.PolicyDocument{
		TransitionRules: []config.TransitionRule{
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"critical"}}},
		},
	}

	allowed, reason := doc.CanTransition("FactsExtracted", "DriftChecked", config.Drift{Level: "critical"})
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestCanTransition_BlocksOnMatchingDriftLevel(t *testing.T) {
	doc := config.PolicyDocument{
		TransitionRules: []config.TransitionRule{
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"high", "critical"}}, Reason: "drift too high"},
		},
	}

	allowed, reason := doc.CanTransition("ContextIngested", "FactsExtracted", config.Drift{Level: "critical"})
	assert.False(t, allowed)
	assert.Equal(t, "drift too high", reason)
}

func TestCanTransition_AllowsWhenDriftLevelNotListed(t *testing.T) {
	doc := config.PolicyDocument{
		TransitionRules: []config.TransitionRule{
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"critical"}}},
		},
	}

	allowed, reason := doc.CanTransition("ContextIngested", "FactsExtracted", config.Drift{Level: "low"})
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestCanTransition_FirstMatchingRuleWins(t *testing.T) {
	doc := config.PolicyDocument{
		TransitionRules: []config.TransitionRule{
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"critical"}}, Reason: "first"},
			{From: "ContextIngested", To: "FactsExtracted", BlockWhen: config.DriftBlock{DriftLevel: []string{"critical"}}, Reason: "second"},
		},
	}

	_, reason := doc.CanTransition("ContextIngested", "FactsExtracted", config.Drift{Level: "critical"})
	assert.Equal(t, "first", reason)
}

func TestEvaluateRules_CollectsAllMatchingActions(t *testing.T) {
	doc := config.PolicyDocument{
		Rules: []config.DriftRule{
			{When: config.DriftCondition{DriftLevel: []string{"high", "critical"}}, Action: "notify_oversight"},
			{When: config.DriftCondition{DriftLevel: []string{"critical"}, DriftType: "semantic"}, Action: "escalate_human"},
			{When: config.DriftCondition{DriftLevel: []string{"low"}}, Action: "ignore"},
		},
	}

	actions := doc.EvaluateRules(config.Drift{Level: "critical", Types: []string{"semantic"}})
	assert.Equal(t, []string{"notify_oversight", "escalate_human"}, actions)
}

func TestEvaluateRules_DriftTypeMustMatchWhenSpecified(t *testing.T) {
	doc := config.PolicyDocument{
		Rules: []config.DriftRule{
			{When: config.DriftCondition{DriftLevel: []string{"critical"}, DriftType: "semantic"}, Action: "escalate_human"},
		},
	}

	actions := doc.EvaluateRules(config.Drift{Level: "critical", Types: []string{"structural"}})
	assert.Empty(t, actions)
}

func TestGetForScope_AppliesModeOverride(t *testing.T) {
	doc := config.PolicyDocument{
		Mode: "YOLO",
		Scopes: map[string]config.ScopeOverride{
			"scope-a": {Mode: "MITL"},
		},
	}

	assert.Equal(t, "MITL", doc.GetForScope("scope-a").Mode)
	assert.Equal(t, "YOLO", doc.GetForScope("scope-b").Mode)
}
