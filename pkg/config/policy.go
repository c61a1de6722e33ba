package config

// PolicyDocument is the YAML-defined rule set evaluated by the deterministic
// policy engine (C6) during phase one of the governance pipeline. It is
// versioned so filter_configs rows can retain prior revisions.
type PolicyDocument struct {
	Version         int                      `yaml:"version" validate:"required,min=1"`
	Mode            string                   `yaml:"mode,omitempty" validate:"omitempty,oneof=YOLO MITL MASTER"`
	TransitionRules []TransitionRule         `yaml:"transition_rules" validate:"required,min=1,dive"`
	Rules           []DriftRule              `yaml:"rules,omitempty" validate:"omitempty,dive"`
	Scopes          map[string]ScopeOverride `yaml:"scopes,omitempty" validate:"omitempty,dive"`
}

// TransitionRule blocks a (from, to) state transition while the scope's
// drift snapshot is at one of the listed levels. Rules are scanned in
// document order; the first rule matching both the transition and the
// current drift level wins (§4.5 can_transition).
type TransitionRule struct {
	ID        string     `yaml:"id,omitempty"`
	From      string     `yaml:"from" validate:"required"`
	To        string     `yaml:"to" validate:"required"`
	BlockWhen DriftBlock `yaml:"block_when"`
	Reason    string     `yaml:"reason,omitempty"`
}

// DriftBlock names the drift levels at which a TransitionRule blocks.
type DriftBlock struct {
	DriftLevel []string `yaml:"drift_level,omitempty"`
}

// DriftRule contributes an advisory action whenever the scope's drift
// matches its condition (§4.5 evaluate_rules). Unlike TransitionRule, a
// DriftRule never blocks a transition by itself; its actions feed whatever
// oversight or remediation path reads them.
type DriftRule struct {
	When   DriftCondition `yaml:"when" validate:"required"`
	Action string         `yaml:"action" validate:"required"`
}

// DriftCondition matches a drift snapshot. An empty DriftType matches any
// type so long as the level matches.
type DriftCondition struct {
	DriftLevel []string `yaml:"drift_level,omitempty"`
	DriftType  string   `yaml:"drift_type,omitempty"`
}

// Drift is the scope's current drift snapshot, as loaded from the knowledge
// graph ahead of a policy evaluation.
type Drift struct {
	Level string
	Types []string
}

// ScopeOverride lets an individual scope replace the default mode, finality
// thresholds, or oversight mode without forking the whole policy document.
type ScopeOverride struct {
	Mode          string            `yaml:"mode,omitempty" validate:"omitempty,oneof=YOLO MITL MASTER"`
	Finality      *FinalityDefaults `yaml:"finality,omitempty"`
	OversightMode string            `yaml:"oversight_mode,omitempty" validate:"omitempty,oneof=autonomous advisory gated"`
}

func containsStr(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// CanTransition scans TransitionRules in order for the first rule matching
// (from, to) whose block_when.drift_level includes drift.Level. No match
// means the transition is allowed (§4.5 can_transition).
func (d PolicyDocument) CanTransition(from, to string, drift Drift) (allowed bool, reason string) {
	for _, rule := range d.TransitionRules {
		if rule.From != from || rule.To != to {
			continue
		}
		if containsStr(rule.BlockWhen.DriftLevel, drift.Level) {
			if rule.Reason != "" {
				return false, rule.Reason
			}
			return false, "transition blocked at drift level " + drift.Level
		}
	}
	return true, ""
}

// EvaluateRules collects every rule action whose condition matches the
// given drift snapshot (§4.5 evaluate_rules). A rule with no DriftType
// matches any type once its level matches.
func (d PolicyDocument) EvaluateRules(drift Drift) []string {
	var actions []string
	for _, rule := range d.Rules {
		if !containsStr(rule.When.DriftLevel, drift.Level) {
			continue
		}
		if rule.When.DriftType != "" && !containsStr(drift.Types, rule.When.DriftType) {
			continue
		}
		actions = append(actions, rule.Action)
	}
	return actions
}

// GetForScope returns the policy document with Mode overridden by the
// scope's own mode override, if one is configured (§4.5 get_for_scope).
func (d PolicyDocument) GetForScope(scopeID string) PolicyDocument {
	out := d
	if override, ok := d.Scopes[scopeID]; ok && override.Mode != "" {
		out.Mode = override.Mode
	}
	return out
}
