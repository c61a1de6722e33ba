package slack

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLen = 2900

// ReviewRequest describes a pending_reviews row surfaced to a human.
type ReviewRequest struct {
	ScopeID  string
	Question string
	Rank     int
	Options  []string
}

// ReviewResolution describes how a pending review was resolved.
type ReviewResolution struct {
	ScopeID    string
	Question   string
	ResolvedBy string
	Resolution string
}

// BuildReviewRequestedBlocks renders the Block Kit payload posted when the
// watchdog escalates a scope to human-in-the-loop review.
func BuildReviewRequestedBlocks(req ReviewRequest) []goslack.Block {
	header := goslack.NewHeaderBlock(goslack.NewTextBlockObject(
		goslack.PlainTextType, "Review requested", false, false))

	body := fmt.Sprintf("*Scope:* `%s`\n*Rank:* %d\n\n%s", req.ScopeID, req.Rank, truncateForSlack(req.Question))
	section := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false), nil, nil)

	blocks := []goslack.Block{header, section}

	if len(req.Options) > 0 {
		optionsText := "*Options:*\n" + strings.Join(prefixList(req.Options), "\n")
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(optionsText), false, false), nil, nil))
	}

	return blocks
}

// BuildReviewResolvedBlocks renders the Block Kit payload posted when a
// pending review resolves, intended to thread off the original request.
func BuildReviewResolvedBlocks(res ReviewResolution) []goslack.Block {
	body := fmt.Sprintf("*Resolved by:* %s\n*Decision:* %s", res.ResolvedBy, truncateForSlack(res.Resolution))
	section := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false), nil, nil)
	return []goslack.Block{section}
}

func prefixList(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return out
}

func truncateForSlack(s string) string {
	if len(s) <= maxBlockTextLen {
		return s
	}
	return s[:maxBlockTextLen] + "…"
}
