package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

func filterByLabelStatus(nodes []models.Node, label, status string) []models.Node {
	var out []models.Node
	for _, n := range nodes {
		if containsStr(n.Labels, label) && n.Status == status {
			out = append(out, n)
		}
	}
	return out
}

func describeNodes(nodes []models.Node, limit int) []string {
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		text := contentText(n.Content)
		if text == "" {
			text = n.Key
		}
		out = append(out, text)
	}
	return out
}

// Offenders returns up to limit human-readable descriptions of the nodes or
// edges most responsible for a blocked finality dimension, used to phrase
// concrete watchdog questions (§4.9).
func (s *Store) Offenders(ctx context.Context, scopeID, dimension string, limit int) ([]string, error) {
	nodes, err := s.LiveNodes(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("load nodes for offenders scope %s: %w", scopeID, err)
	}

	switch dimension {
	case "claim_confidence":
		claims := filterByLabelStatus(nodes, "claim", "active")
		sort.Slice(claims, func(i, j int) bool { return claims[i].Confidence < claims[j].Confidence })
		return describeNodes(claims, limit), nil

	case "goal_completion":
		var goals []models.Node
		for _, n := range nodes {
			if containsStr(n.Labels, "goal") && n.Status == "active" {
				goals = append(goals, n)
			}
		}
		return describeNodes(goals, limit), nil

	case "risk_score_inverse":
		risks := filterByLabelStatus(nodes, "risk", "active")
		return describeNodes(risks, limit), nil

	case "contradiction_resolution":
		edges, err := s.LiveEdges(ctx, scopeID)
		if err != nil {
			return nil, fmt.Errorf("load edges for offenders scope %s: %w", scopeID, err)
		}
		byID := make(map[string]models.Node, len(nodes))
		for _, n := range nodes {
			byID[n.ID] = n
		}
		var out []string
		for _, e := range edges {
			if e.Relation != "contradicts" {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, fmt.Sprintf("%q vs %q", contentText(byID[e.FromNodeID].Content), contentText(byID[e.ToNodeID].Content)))
		}
		return out, nil

	default:
		return nil, nil
	}
}
