package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/slack"
)

func newMockSlackServer(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var mu sync.Mutex
	var posted []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat.postMessage":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			posted = append(posted, body)
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1234.5678"})
		case "/conversations.history":
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "messages": []any{}})
		default:
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return server, &posted
}

func TestService_NilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, slack.NewService(slack.ServiceConfig{}))
	assert.Nil(t, slack.NewService(slack.ServiceConfig{Token: "xoxb-test"}))
	assert.Nil(t, slack.NewService(slack.ServiceConfig{ChannelID: "C123"}))
}

func TestService_NotifyReviewRequested(t *testing.T) {
	server, posted := newMockSlackServer(t)

	svc := slack.NewService(slack.ServiceConfig{
		Token:     "xoxb-test",
		ChannelID: "C123",
		APIURL:    server.URL + "/",
	})
	require.NotNil(t, svc)

	svc.NotifyReviewRequested(context.Background(), slack.ReviewRequest{
		ScopeID:  "scope-1",
		Question: "Should the rollout proceed to region eu-west?",
		Rank:     1,
		Options:  []string{"approve", "reject", "defer"},
	})

	require.Len(t, *posted, 1)
}

func TestService_NotifyReviewResolved_NoOpOnNil(t *testing.T) {
	var svc *slack.Service
	svc.NotifyReviewResolved(context.Background(), slack.ReviewResolution{ScopeID: "scope-1"})
}
