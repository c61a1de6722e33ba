package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/swarm-governance/pkg/models"
)

// FactInput is one incoming claim/goal/risk observation for a facts-sync
// round (§4.3). Key is optional: when empty, SyncFacts derives one from the
// fact's label and content text the first time it is seen.
type FactInput struct {
	Key        string
	Labels     []string
	Content    map[string]any
	Confidence float64
}

// SyncResult summarizes one facts-sync round.
type SyncResult struct {
	Matched            int
	Inserted           int
	MarkedIrrelevant   []string
	ContradictionEdges []models.Edge
}

var (
	nliContradictionPattern  = regexp.MustCompile(`(?i)NLI:\s*"([^"]+)"\s*vs\s*"([^"]+)"`)
	plainContradictionPattern = regexp.MustCompile(`(?i)^(.+?)\s+contradicts\s+(.+)$`)
)

func containsStr(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func contentText(content map[string]any) string {
	if content == nil {
		return ""
	}
	if t, ok := content["text"].(string); ok {
		return t
	}
	return ""
}

// prefixOrEqual implements the "exact or prefix containment" match rule
// §4.3 uses to line up an incoming fact against a prior one.
func prefixOrEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

func deriveKey(scopeID, label, text string) string {
	sum := sha256.Sum256([]byte(scopeID + "|" + label + "|" + text))
	return label + "-" + hex.EncodeToString(sum[:])[:16]
}

// SyncFacts reconciles one round of extracted claims, goals, and risks
// against the scope's prior fact-sourced nodes (§4.3). It never deletes a
// node: unmatched active nodes are marked irrelevant, and a node that
// reappears is reactivated rather than recreated. contradictionTexts are
// parsed into `contradicts` edges between whichever nodes their fragments
// resolve to, honoring invariant I4: a pair that already has a `resolves`
// edge targeting either endpoint never gets a `contradicts` edge.
func (s *Store) SyncFacts(ctx context.Context, scopeID string, claims, goals, risks []FactInput, contradictionTexts []string) (SyncResult, error) {
	var result SyncResult

	prior, err := s.LiveNodes(ctx, scopeID)
	if err != nil {
		return result, fmt.Errorf("load prior fact nodes for scope %s: %w", scopeID, err)
	}

	matched := make(map[string]bool, len(prior))
	allLive := make([]models.Node, len(prior))
	copy(allLive, prior)

	sync := func(label string, incoming []FactInput) error {
		var candidates []models.Node
		for _, n := range prior {
			if containsStr(n.Labels, label) {
				candidates = append(candidates, n)
			}
		}

		for _, fact := range incoming {
			text := contentText(fact.Content)

			var existing *models.Node
			for i := range candidates {
				c := &candidates[i]
				if matched[c.ID] {
					continue
				}
				if prefixOrEqual(contentText(c.Content), text) {
					existing = c
					break
				}
			}

			if existing != nil {
				matched[existing.ID] = true
				result.Matched++

				newConfidence := existing.Confidence
				if fact.Confidence > newConfidence {
					newConfidence = fact.Confidence
				}
				if newConfidence != existing.Confidence {
					if _, err := s.UpsertNode(ctx, scopeID, existing.Key, existing.Labels, existing.Content, newConfidence, existing.Status); err != nil {
						return fmt.Errorf("ratchet confidence for %s: %w", existing.Key, err)
					}
				}
				if existing.Status != "active" {
					if err := s.UpdateStatus(ctx, scopeID, existing.Key, "active"); err != nil {
						return fmt.Errorf("reactivate %s: %w", existing.Key, err)
					}
				}
				continue
			}

			key := fact.Key
			if key == "" {
				key = deriveKey(scopeID, label, text)
			}
			labels := fact.Labels
			if !containsStr(labels, label) {
				labels = append([]string{label}, labels...)
			}
			inserted, err := s.UpsertNode(ctx, scopeID, key, labels, fact.Content, fact.Confidence, "active")
			if err != nil {
				return fmt.Errorf("insert new %s %s: %w", label, key, err)
			}
			matched[inserted.ID] = true
			allLive = append(allLive, inserted)
			result.Inserted++
		}
		return nil
	}

	if err := sync("claim", claims); err != nil {
		return result, err
	}
	if err := sync("goal", goals); err != nil {
		return result, err
	}
	if err := sync("risk", risks); err != nil {
		return result, err
	}

	for _, n := range prior {
		if matched[n.ID] {
			continue
		}
		if n.Status == "irrelevant" {
			continue
		}
		if err := s.UpdateStatus(ctx, scopeID, n.Key, "irrelevant"); err != nil {
			return result, fmt.Errorf("mark %s irrelevant: %w", n.Key, err)
		}
		result.MarkedIrrelevant = append(result.MarkedIrrelevant, n.ID)
	}

	if len(contradictionTexts) > 0 {
		edges, err := s.resolveContradictions(ctx, scopeID, allLive, contradictionTexts)
		if err != nil {
			return result, err
		}
		result.ContradictionEdges = edges
	}

	return result, nil
}

func parseContradiction(text string) (string, string, bool) {
	if m := nliContradictionPattern.FindStringSubmatch(text); m != nil {
		return m[1], m[2], true
	}
	if m := plainContradictionPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

func resolveFragment(live []models.Node, fragment string) (models.Node, bool) {
	for _, n := range live {
		if prefixOrEqual(contentText(n.Content), fragment) {
			return n, true
		}
	}
	return models.Node{}, false
}

// resolveContradictions implements §4.3 step 5: parse each contradiction
// text into two fragments, resolve each to a live node, and append a
// `contradicts` edge unless a `resolves` edge already targets either
// endpoint (I4) or the edge already exists.
func (s *Store) resolveContradictions(ctx context.Context, scopeID string, live []models.Node, texts []string) ([]models.Edge, error) {
	liveEdges, err := s.LiveEdges(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("load live edges for scope %s: %w", scopeID, err)
	}

	resolvedTargets := make(map[string]bool)
	existingContradicts := make(map[string]bool)
	for _, e := range liveEdges {
		if e.Relation == "resolves" {
			resolvedTargets[e.ToNodeID] = true
		}
		if e.Relation == "contradicts" {
			existingContradicts[e.FromNodeID+"|"+e.ToNodeID] = true
			existingContradicts[e.ToNodeID+"|"+e.FromNodeID] = true
		}
	}

	var created []models.Edge
	for _, text := range texts {
		fragA, fragB, ok := parseContradiction(text)
		if !ok {
			continue
		}
		nodeA, okA := resolveFragment(live, fragA)
		nodeB, okB := resolveFragment(live, fragB)
		if !okA || !okB || nodeA.ID == nodeB.ID {
			continue
		}
		if resolvedTargets[nodeA.ID] || resolvedTargets[nodeB.ID] {
			continue // I4: a resolved endpoint never gets a new contradicts edge
		}
		if existingContradicts[nodeA.ID+"|"+nodeB.ID] {
			continue
		}

		edge, err := s.UpsertEdge(ctx, scopeID, nodeA.ID, nodeB.ID, "contradicts", 1.0)
		if err != nil {
			return created, fmt.Errorf("insert contradicts edge %s-%s: %w", nodeA.ID, nodeB.ID, err)
		}
		existingContradicts[nodeA.ID+"|"+nodeB.ID] = true
		existingContradicts[nodeB.ID+"|"+nodeA.ID] = true
		created = append(created, edge)
	}
	return created, nil
}
