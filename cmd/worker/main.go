// Command worker is a generic role instance: it pulls one-shot job commands
// off its role's subject, emits a completion envelope, and acknowledges.
// What a job actually does — fact extraction, drift analysis, planning,
// status summarization — is domain logic the hatchery does not own and
// this stub does not implement; it exists to exercise the consumption and
// envelope-publishing contract the hatchery supervises.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codeready-toolchain/swarm-governance/pkg/bus"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	role := flag.String("role", getEnv("AGENT_ROLE", "extract_facts"), "Worker role name")
	instanceID := flag.String("instance-id", getEnv("WORKER_INSTANCE_ID", ""), "Instance identifier for logging")
	flag.Parse()

	logger := slog.Default().With("component", "cmd-worker", "role", *role, "instance_id", *instanceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker, err := bus.Connect(ctx, bus.Config{
		URL:        getEnv("NATS_URL", "nats://localhost:4222"),
		StreamName: "swarm",
		Subjects:   []string{"swarm.>"},
	})
	if err != nil {
		log.Fatalf("failed to connect to bus: %v", err)
	}
	defer broker.Close()

	consumer, err := broker.DurableConsumer(ctx, *role+"-shared-events", "swarm.jobs."+*role, 5)
	if err != nil {
		log.Fatalf("failed to create consumer for role %s: %v", *role, err)
	}

	handler := func(ctx context.Context, msg jetstream.Msg) error {
		var job struct {
			ScopeID string `json:"scope_id"`
			JobID   string `json:"job_id"`
		}
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			logger.Error("failed to decode job, dropping", "error", err)
			return nil
		}

		logger.Info("job received", "scope_id", job.ScopeID, "job_id", job.JobID)

		envelope, err := json.Marshal(map[string]any{
			"scope_id": job.ScopeID,
			"job_id":   job.JobID,
			"role":     *role,
			"status":   "completed",
		})
		if err != nil {
			return err
		}

		return broker.Publish(ctx, "swarm.events."+*role+"_completed", envelope)
	}

	logger.Info("worker instance started")
	bus.FetchLoop(ctx, consumer, handler, logger)
	logger.Info("worker instance stopped")
}
