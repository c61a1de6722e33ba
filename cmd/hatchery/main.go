// Command hatchery supervises the worker-role instance pools: it sizes
// each role from arrival rate and bus lag, drains idle instances on a
// cooldown, and restarts failed instances under a bounded intensity policy
// (C11). The instances it spawns pull jobs off the bus and acknowledge
// them; the domain logic a job triggers belongs to the worker binary, not
// here.
package main

import (
	"context"
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
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/swarm-governance/pkg/bus"
	"github.com/codeready-toolchain/swarm-governance/pkg/config"
	"github.com/codeready-toolchain/swarm-governance/pkg/database"
	"github.com/codeready-toolchain/swarm-governance/pkg/hatchery"
	"github.com/codeready-toolchain/swarm-governance/pkg/metrics"
)

// roles mirrors the one-shot command subjects the governance pipeline's
// worker swarm answers to.
var roles = []string{"extract_facts", "check_drift", "plan_actions", "summarize_status"}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	logger := slog.Default().With("component", "cmd-hatchery")

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
	hatcheryDefaults := appConfig.Defaults.Hatchery

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.Open(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	reg := prometheus.NewRegistry()
	promRegistry := metrics.NewRegistry(reg)
	events := hatchery.NewEventStore(dbClient.DB)

	broker, err := bus.Connect(ctx, bus.Config{
		URL:        getEnv("NATS_URL", "nats://localhost:4222"),
		StreamName: "swarm",
		Subjects:   []string{"swarm.>"},
	})
	if err != nil {
		log.Fatalf("failed to connect to bus: %v", err)
	}
	defer broker.Close()

	supervisor := hatchery.NewSupervisor(events, promRegistry)
	lagConsumers := make(map[string]jetstream.Consumer)

	for _, role := range roles {
		consumerName := role + "-shared-events"
		consumer, err := broker.DurableConsumer(ctx, consumerName, "swarm.jobs."+role, 5)
		if err != nil {
			log.Fatalf("failed to create consumer for role %s: %v", role, err)
		}
		lagConsumers[role] = consumer

		supervisor.RegisterRole(hatchery.RoleConfig{
			Name:                   role,
			Factory:                instanceFactory(supervisor, role, consumer, logger),
			MinInstances:           hatcheryDefaults.MinInstances,
			MaxInstances:           hatcheryDefaults.MaxInstances,
			ServiceRate:            hatcheryDefaults.ServiceRate,
			TargetUtilization:      hatcheryDefaults.TargetUtilization,
			LagThreshold:           20,
			ActivationLagThreshold: 5,
			ArrivalWindow:          time.Minute,
			ScaleDownCooldown:      hatcheryDefaults.ScaleDownCooldown,
			HeartbeatTimeout:       hatcheryDefaults.HeartbeatTimeout,
			MaxRestarts:            5,
			RestartWindow:          time.Minute,
			GraceDeadline:          10 * time.Second,
		})
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, role := range roles {
					lag, err := bus.Lag(ctx, lagConsumers[role])
					if err != nil {
						logger.Warn("failed to read lag", "role", role, "error", err)
						continue
					}
					if _, err := supervisor.ScaleUpTick(ctx, role, lag, now); err != nil {
						logger.Warn("scale-up tick failed", "role", role, "error", err)
					}
					supervisor.ScaleDownTick(role, now)
					supervisor.HeartbeatTick(role, now)
				}
			}
		}
	}()

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	router.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	router.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	router.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	router.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	router.GET("/debug/pprof/:name", gin.WrapF(pprof.Index))

	httpPort := getEnv("HTTP_PORT", "8081")
	server := &http.Server{Addr: ":" + httpPort, Handler: router}
	go func() {
		logger.Info("http server listening", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down hatchery")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Error("hatchery shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}
