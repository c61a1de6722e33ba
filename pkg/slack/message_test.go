package slack_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/swarm-governance/pkg/slack"
)

func TestBuildReviewRequestedBlocks(t *testing.T) {
	blocks := slack.BuildReviewRequestedBlocks(slack.ReviewRequest{
		ScopeID:  "scope-42",
		Question: "Proceed with migration?",
		Rank:     2,
		Options:  []string{"yes", "no"},
	})

	require.Len(t, blocks, 3)
}

func TestBuildReviewRequestedBlocks_NoOptions(t *testing.T) {
	blocks := slack.BuildReviewRequestedBlocks(slack.ReviewRequest{
		ScopeID:  "scope-1",
		Question: "Is this fine?",
		Rank:     1,
	})

	require.Len(t, blocks, 2)
}

func TestBuildReviewResolvedBlocks(t *testing.T) {
	blocks := slack.BuildReviewResolvedBlocks(slack.ReviewResolution{
		ScopeID:    "scope-1",
		ResolvedBy: "alice",
		Resolution: "approved",
	})

	require.Len(t, blocks, 1)
}

func TestTruncation(t *testing.T) {
	long := strings.Repeat("a", 3500)
	blocks := slack.BuildReviewRequestedBlocks(slack.ReviewRequest{
		ScopeID:  "scope-1",
		Question: long,
		Rank:     1,
	})
	require.Len(t, blocks, 2)
	section, ok := blocks[1].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(section.Text.Text, "…"))
	assert.NotContains(t, section.Text.Text, long)
}
