// Package bus implements the durable event bus (C1) proposals travel on,
// backed by NATS JetStream. Every consumer is durable with explicit ack, so
// a crash mid-processing redelivers the message rather than losing it; the
// exactly-once effect on top of at-least-once delivery is the dedup
// registry's job (pkg/wal), not this package's.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bus wraps a JetStream context bound to one stream.
type Bus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Config describes the stream Bus publishes to and consumes from.
type Config struct {
	URL         string
	StreamName  string
	Subjects    []string
	MaxAge      time.Duration
	ConnectOpts []nats.Option
}

// Connect dials NATS, creates or updates the stream, and returns a Bus ready
// to publish and to register durable consumers on.
func Connect(ctx context.Context, cfg Config) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL, cfg.ConnectOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: cfg.Subjects,
		MaxAge:   maxAge,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create or update stream %s: %w", cfg.StreamName, err)
	}

	return &Bus{nc: nc, js: js, stream: stream}, nil
}

// Close drains the connection.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}

// Publish sends payload to subject and waits for the broker's ack.
func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := b.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// DurableConsumer creates or attaches to a durable, explicit-ack consumer
// named consumerName, filtered to filterSubject.
func (b *Bus) DurableConsumer(ctx context.Context, consumerName, filterSubject string, maxDeliver int) (jetstream.Consumer, error) {
	if maxDeliver <= 0 {
		maxDeliver = 5
	}
	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("create or update consumer %s: %w", consumerName, err)
	}
	return consumer, nil
}

// Lag returns the number of messages pending delivery to consumer, used by
// the hatchery (C11) to decide when to scale up.
func Lag(ctx context.Context, consumer jetstream.Consumer) (uint64, error) {
	info, err := consumer.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch consumer info: %w", err)
	}
	return info.NumPending, nil
}
