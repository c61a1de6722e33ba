// Command governance runs the three-phase governance pipeline: it consumes
// proposals off the durable bus, evaluates them against the deterministic
// policy engine and (when routed) the oversight model, commits the result
// to the CAS state machine and write-ahead log, and serves a minimal HTTP
// API for health and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/swarm-governance/pkg/bus"
	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/database"
	"github.com/codeready-toolchain/swarm-governance/pkg/governance"
	"github.com/codeready-toolchain/swarm-governance/pkg/graph"
	"github.com/codeready-toolchain/swarm-governance/pkg/llmclient"
	"github.com/codeready-toolchain/swarm-governance/pkg/metrics"
	"github.com/codeready-toolchain/swarm-governance/pkg/models"
	"github.com/codeready-toolchain/swarm-governance/pkg/permission"
	"github.com/codeready-toolchain/swarm-governance/pkg/statemachine"
	"github.com/codeready-toolchain/swarm-governance/pkg/wal"
	"github.com/codeready-toolchain/swarm-governance/pkg/watchdog"
	"github.com/nats-io/nats.go/jetstream"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	logger := slog.Default().With("component", "cmd-governance")

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("no .env file loaded, continuing with existing environment", "path", envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig, err := config.Load(filepath.Join(*configDir, "governance.yaml"))
	if err != nil {
		log.Fatalf("failed to load governance config: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.Open(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	walStore := wal.New(dbClient.DB)
	dedup := wal.NewDedupRegistry(dbClient.DB, "governance")
	machine := statemachine.New(dbClient.DB, walStore)

	reg := prometheus.NewRegistry()
	promRegistry := metrics.NewRegistry(reg)

	permClient, err := permission.New(ctx, permission.DefaultModule, nil)
	if err != nil {
		log.Fatalf("failed to compile permission policy: %v", err)
	}

	var model llmclient.ModelService
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		model = llmclient.New(apiKey)
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, oversight routing will accept the deterministic result")
	}

	graphStore := graph.New(dbClient.DB)
	reviewStore := watchdog.NewStore(dbClient.DB)

	pipeline := governance.New(appConfig, machine, walStore, graphStore, reviewStore, permClient, model, promRegistry)

	busConfig := bus.Config{
		URL:        getEnv("NATS_URL", "nats://localhost:4222"),
		StreamName: "swarm",
		Subjects:   []string{"swarm.>"},
	}
	broker, err := bus.Connect(ctx, busConfig)
	if err != nil {
		log.Fatalf("failed to connect to bus: %v", err)
	}
	defer broker.Close()

	consumer, err := broker.DurableConsumer(ctx, "governance-proposals", "swarm.proposals.>", 5)
	if err != nil {
		log.Fatalf("failed to create proposals consumer: %v", err)
	}

	go bus.FetchLoop(ctx, consumer, proposalHandler(dedup, pipeline, broker, logger), logger)

	quiescenceWatchdog := watchdog.New(walStore, reviewStore, newSlackNotifier(), graphStore, appConfig.Defaults.Watchdog)
	coordinator := newFinalityCoordinator(graphStore, appConfig, quiescenceWatchdog, logger)

	if err := subscribeFinalityEvaluate(ctx, broker, coordinator, promRegistry, logger); err != nil {
		log.Fatalf("failed to subscribe to finality evaluate subject: %v", err)
	}
	go runWatchdogLoop(ctx, coordinator, appConfig.Defaults.Watchdog.CheckInterval)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := reviewStore.CountPending(ctx)
				if err != nil {
					logger.Warn("failed to count pending reviews", "error", err)
					continue
				}
				promRegistry.PendingReviews.Set(float64(count))
			}
		}
	}()

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
					logger.Warn("failed to read consumer lag", "error", err)
					continue
				}
				promRegistry.QueueLag.Set(float64(lag))
			}
		}
	}()

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := database.Health(reqCtx, dbClient.DB.DB)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": dbHealth, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": dbHealth})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	router.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	router.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	router.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	router.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	router.GET("/debug/pprof/:name", gin.WrapF(pprof.Index))

	httpPort := getEnv("HTTP_PORT", "8080")
	server := &http.Server{Addr: ":" + httpPort, Handler: router}

	go func() {
		logger.Info("http server listening", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	mitlPort := getEnv("MITL_PORT", "8082")
	mitlRouter := newMITLRouter(reviewStore, broker, dbClient, reg, logger.With("component", "mitl"))
	mitlServer := &http.Server{Addr: ":" + mitlPort, Handler: mitlRouter}

	go func() {
		logger.Info("mitl server listening", "port", mitlPort)
		if err := mitlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("mitl server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := mitlServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("mitl server shutdown error", "error", err)
	}
}

// proposalHandler decodes a proposal message, claims it for exactly-once
// processing, evaluates it through the pipeline, and publishes the
// resulting action — then triggers a finality pass for the scope, per the
// invariant that every commit is followed by one.
func proposalHandler(dedup *wal.DedupRegistry, pipeline *governance.Pipeline, broker *bus.Bus, logger *slog.Logger) bus.Handler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		var proposal models.Proposal
		if err := json.Unmarshal(msg.Data(), &proposal); err != nil {
			logger.Error("failed to decode proposal, dropping", "error", err)
			return nil // malformed payloads are not retryable; ack and drop
		}

		won, err := dedup.Claim(ctx, proposal.MessageID)
		if err != nil {
			return err
		}
		if !won {
			logger.Debug("proposal already processed, skipping", "message_id", proposal.MessageID)
			return nil
		}

		result, err := pipeline.Evaluate(ctx, proposal)
		if err != nil {
			return err
		}

		if result.Final == models.DecisionIgnore {
			logger.Debug("proposal ignored, not an advance_state proposal",
				"message_id", proposal.MessageID, "event_type", proposal.EventType)
			return nil
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return err
		}

		subject := "swarm.actions.advance_state"
		switch result.Final {
		case models.DecisionReject:
			subject = "swarm.rejections." + proposal.EventType
		case models.DecisionPending:
			subject = "swarm.pending_approval." + proposal.MessageID
		}
		if err := broker.Publish(ctx, subject, payload); err != nil {
			return err
		}

		finalityPayload, err := json.Marshal(map[string]string{"scope_id": proposal.ScopeID})
		if err != nil {
			return err
		}
		return broker.Publish(ctx, "swarm.finality.evaluate", finalityPayload)
	}
}
