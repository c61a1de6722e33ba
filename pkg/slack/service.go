package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig configures the HITL notification service.
type ServiceConfig struct {
	Token     string
	ChannelID string
	APIURL    string // optional, used in tests
	Timeout   time.Duration
}

// Service notifies a Slack channel when the watchdog escalates a scope for
// human review and when that review resolves. It is nil-safe: every method
// on a nil *Service is a no-op, so callers can construct it unconditionally
// from config and skip notifications entirely when Slack isn't configured.
type Service struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewService builds a Service, or returns nil if Token or ChannelID is
// unset. A nil Service disables notifications without requiring callers to
// branch on configuration.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil
	}

	var client *Client
	if cfg.APIURL != "" {
		client = NewClientWithAPIURL(cfg.Token, cfg.ChannelID, cfg.APIURL)
	} else {
		client = NewClient(cfg.Token, cfg.ChannelID)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		client:  client,
		timeout: timeout,
		logger:  slog.Default().With("component", "slack-service"),
	}
}

// NotifyReviewRequested posts a review-requested message for the given
// pending review. Failures are logged, not returned: a notification outage
// must never block the watchdog from recording the pending review.
func (s *Service) NotifyReviewRequested(ctx context.Context, req ReviewRequest) {
	if s == nil {
		return
	}
	blocks := BuildReviewRequestedBlocks(req)
	if err := s.client.PostMessage(ctx, blocks, "", s.timeout); err != nil {
		s.logger.Error("failed to post review-requested notification",
			"scope_id", req.ScopeID, "error", err)
	}
}

// NotifyReviewResolved posts a review-resolved message, threaded off the
// original review-requested message when it can still be found.
func (s *Service) NotifyReviewResolved(ctx context.Context, res ReviewResolution) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindMessageByScope(ctx, res.ScopeID)
	if err != nil {
		s.logger.Warn("failed to locate review-requested message for threading",
			"scope_id", res.ScopeID, "error", err)
	}

	blocks := BuildReviewResolvedBlocks(res)
	if err := s.client.PostMessage(ctx, blocks, threadTS, s.timeout); err != nil {
		s.logger.Error("failed to post review-resolved notification",
			"scope_id", res.ScopeID, "error", err)
	}
}
