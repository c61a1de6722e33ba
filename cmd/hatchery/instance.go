package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codeready-toolchain/swarm-governance/pkg/hatchery"
)

// instanceFactory builds one role's InstanceFunc: it pulls jobs off its
// durable consumer, acknowledges them, feeds the supervisor's arrival-rate
// estimator, and reports liveness on every poll so a stuck instance is
// caught by the heartbeat tick rather than running forever silently.
func instanceFactory(sup *hatchery.Supervisor, role string, consumer jetstream.Consumer, logger *slog.Logger) hatchery.InstanceFunc {
	return func(ctx context.Context, instanceID string) error {
		logger.Info("instance starting", "role", role, "instance_id", instanceID)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			sup.Heartbeat(role, instanceID, time.Now())

			msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}

			drained := 0
			for msg := range msgs.Messages() {
				// The job's domain effect is out of scope here; this
				// instance's job is to prove liveness and drain the
				// queue. A real worker process would dispatch msg.Data()
				// to the role's handler before acking.
				if err := msg.Ack(); err != nil {
					logger.Error("failed to ack job", "role", role, "error", err)
				}
				drained++
			}
			if drained > 0 {
				sup.RecordArrival(role, time.Now(), drained)
			}
		}
	}
}
