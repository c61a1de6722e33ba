package llmclient

import "strings"

// classifyVerdictText extracts a structured Verdict from the model's free
// text response. Agents are instructed (via SystemPrompt) to lead their
// answer with one of APPROVE / REJECT / ESCALATE on its own line; anything
// else falls back to ESCALATE so an ambiguous model response never silently
// becomes an approval.
func classifyVerdictText(text string) Verdict {
	upper := strings.ToUpper(text)

	decision := "require_human"
	switch {
	case strings.Contains(upper, "APPROVE"):
		decision = "approve"
	case strings.Contains(upper, "REJECT"):
		decision = "reject"
	case strings.Contains(upper, "ESCALATE"):
		decision = "require_human"
	}

	return Verdict{
		Decision:  decision,
		Rationale: strings.TrimSpace(text),
	}
}
