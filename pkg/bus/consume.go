package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Handler processes one delivered message. Returning nil acks the message;
// returning an error naks it for redelivery.
type Handler func(ctx context.Context, msg jetstream.Msg) error

// FetchLoop pulls one message at a time from consumer until ctx is
// cancelled, applying handler to each. This is the pull-based consumption
// style: it gives a worker explicit control over its own pace, which the
// hatchery relies on to bound how much work a single instance pulls before
// its next heartbeat. A fetch that yields no message waits before the next
// fetch, starting at 500ms and doubling up to 5s; any delivered message
// resets the wait.
func FetchLoop(ctx context.Context, consumer jetstream.Consumer, handler Handler, logger *slog.Logger) {
	const minBackoff, maxBackoff = 500 * time.Millisecond, 5 * time.Second
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		received := 0
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("fetch timeout or error", "error", err)
		} else {
			for msg := range msgs.Messages() {
				received++
				dispatch(ctx, msg, handler, logger)
			}
		}

		if received > 0 {
			backoff = minBackoff
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// ConsumeLoop registers a push-based Consume callback on consumer, running
// until ctx is cancelled. Unlike FetchLoop, delivery is driven by the
// broker; use this for consumers that should drain as fast as the broker
// can push rather than at a self-paced rate.
func ConsumeLoop(ctx context.Context, consumer jetstream.Consumer, handler Handler, logger *slog.Logger) error {
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		dispatch(ctx, msg, handler, logger)
	})
	if err != nil {
		return err
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return nil
}

func dispatch(ctx context.Context, msg jetstream.Msg, handler Handler, logger *slog.Logger) {
	if err := handler(ctx, msg); err != nil {
		logger.Warn("handler failed, nak for redelivery", "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			logger.Error("failed to nak message", "error", nakErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}
