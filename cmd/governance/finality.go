package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codeready-toolchain/swarm-governance/pkg/bus"
	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/convergence"
	"github.com/codeready-toolchain/swarm-governance/pkg/finality"
	"github.com/codeready-toolchain/swarm-governance/pkg/graph"
	"github.com/codeready-toolchain/swarm-governance/pkg/metrics"
	"github.com/codeready-toolchain/swarm-governance/pkg/scoring"
	"github.com/codeready-toolchain/swarm-governance/pkg/slack"
	"github.com/codeready-toolchain/swarm-governance/pkg/wal"
	"github.com/codeready-toolchain/swarm-governance/pkg/watchdog"
)

// finalityCoordinator handles the post-commit finality pass (C8/C9) for
// every scope it has seen and drives the quiescence watchdog (C10) over
// those same scopes on a timer.
type finalityCoordinator struct {
	graph    *graph.Store
	cfg      *config.AppConfig
	watchdog *watchdog.Watchdog
	logger   *slog.Logger

	mu       sync.Mutex
	trackers map[string]*convergence.Tracker
	rounds   map[string]int
	seen     map[string]struct{}
}

func newFinalityCoordinator(graphStore *graph.Store, appConfig *config.AppConfig, w *watchdog.Watchdog, logger *slog.Logger) *finalityCoordinator {
	return &finalityCoordinator{
		graph:    graphStore,
		cfg:      appConfig,
		watchdog: w,
		logger:   logger,
		trackers: make(map[string]*convergence.Tracker),
		rounds:   make(map[string]int),
		seen:     make(map[string]struct{}),
	}
}

// handleFinalityEvaluate reads {"scope_id": ...} off the bus, folds the
// scope's current live facts into its convergence tracker, and evaluates
// finality. A StatusFinal result is not watchdog-escalated; anything short
// of it is left for the next watchdog tick to judge against quiescence.
func (c *finalityCoordinator) handleFinalityEvaluate(ctx context.Context, msg jetstream.Msg) error {
	var payload struct {
		ScopeID string `json:"scope_id"`
	}
	if err := json.Unmarshal(msg.Data(), &payload); err != nil {
		c.logger.Error("failed to decode finality evaluate payload, dropping", "error", err)
		return nil
	}

	result, err := c.evaluate(ctx, payload.ScopeID)
	if err != nil {
		return err
	}

	c.logger.Info("finality evaluated", "scope_id", payload.ScopeID, "status", result.Status, "overall", result.Overall)
	return nil
}

func (c *finalityCoordinator) evaluate(ctx context.Context, scopeID string) (finality.Result, error) {
	snapshot, err := c.graph.FinalitySnapshot(ctx, scopeID)
	if err != nil {
		return finality.Result{}, err
	}

	result := finality.Evaluate(snapshot, c.cfg.FinalityFor(scopeID))

	c.mu.Lock()
	tracker, ok := c.trackers[scopeID]
	if !ok {
		tracker = convergence.New()
		c.trackers[scopeID] = tracker
	}
	c.rounds[scopeID]++
	round := c.rounds[scopeID]
	c.seen[scopeID] = struct{}{}
	c.mu.Unlock()

	summary := tracker.Observe(scoring.Snapshot(round, result))
	c.logger.Debug("convergence observed", "scope_id", scopeID, "round", round,
		"overall", summary.Overall, "monotonic", summary.Monotonic, "plateaued", summary.Plateaued, "slope", summary.Slope)

	return result, nil
}

// watchdogTick runs one quiescence check across every scope the coordinator
// has evaluated at least once.
func (c *finalityCoordinator) watchdogTick(ctx context.Context) {
	c.mu.Lock()
	scopes := make([]string, 0, len(c.seen))
	for scopeID := range c.seen {
		scopes = append(scopes, scopeID)
	}
	c.mu.Unlock()

	now := time.Now()
	for _, scopeID := range scopes {
		result, err := c.evaluate(ctx, scopeID)
		if err != nil {
			c.logger.Error("watchdog: failed to re-evaluate finality", "scope_id", scopeID, "error", err)
			continue
		}
		if _, err := c.watchdog.Check(ctx, scopeID, result, now); err != nil {
			c.logger.Error("watchdog check failed", "scope_id", scopeID, "error", err)
		}
	}
}

// runWatchdogLoop runs watchdogTick every interval until ctx is cancelled.
func runWatchdogLoop(ctx context.Context, c *finalityCoordinator, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.watchdogTick(ctx)
		}
	}
}

// newSlackNotifier builds a watchdog.Notifier from environment-configured
// Slack credentials, or returns nil (the watchdog then records reviews
// without notifying anyone).
func newSlackNotifier() watchdog.Notifier {
	svc := slack.NewService(slack.ServiceConfig{
		Token:     getEnv("SLACK_BOT_TOKEN", ""),
		ChannelID: getEnv("SLACK_CHANNEL_ID", ""),
	})
	if svc == nil {
		return nil
	}
	return svc
}

// subscribeFinalityEvaluate wires both finality-triggering subjects to the
// coordinator: swarm.finality.evaluate (the post-commit trigger every
// proposal publishes) and swarm.actions.finality (the HITL-resolution
// trigger a human review publishes on resolve). Both carry the same
// {scope_id} payload and drive the same re-evaluation.
func subscribeFinalityEvaluate(ctx context.Context, broker *bus.Bus, coordinator *finalityCoordinator, reg *metrics.Registry, logger *slog.Logger) error {
	consumer, err := broker.DurableConsumer(ctx, "governance-finality", "swarm.finality.evaluate", 5)
	if err != nil {
		return err
	}
	go bus.FetchLoop(ctx, consumer, coordinator.handleFinalityEvaluate, logger)

	hitlConsumer, err := broker.DurableConsumer(ctx, "governance-hitl-finality", "swarm.actions.finality", 5)
	if err != nil {
		return err
	}
	go bus.FetchLoop(ctx, hitlConsumer, coordinator.handleFinalityEvaluate, logger)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lag, err := bus.Lag(ctx, consumer)
				if err != nil {
					continue
				}
				_ = lag // queue lag for this consumer is secondary to the proposals consumer's; not separately gauged
			}
		}
	}()
	return nil
}
