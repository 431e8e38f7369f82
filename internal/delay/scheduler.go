package delay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sitobox/queuerouter/internal/clock"
	"github.com/sitobox/queuerouter/internal/mq"
)

// Broker is the narrow broker-adapter surface the scheduler needs:
// declaring a dead-letter queue for a bucket and publishing directly to it
// via the default exchange (routing key = queue name).
type Broker interface {
	DeclareDelayQueue(ctx context.Context, queueName, targetExchange, targetRoute string) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte, opts mq.PublishOptions) error
}

// Spec names a delayed delivery point as either an absolute epoch or a
// delta from now; exactly one should be set.
type Spec struct {
	ExpireEpoch int64
	ExpireDelta int64
}

// Scheduler is the delay scheduler component.
type Scheduler struct {
	broker Broker
	clock  clock.Clock
	logger *slog.Logger
}

// NewScheduler builds a Scheduler.
func NewScheduler(broker Broker, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{broker: broker, clock: clk, logger: logger}
}

// PublishDelayed submits payload for redelivery to targetExchange/
// targetRoute at or after the epoch named by spec. minDelaySeconds is the
// class's min_delay threshold (§4.4): delays at or below it are published
// immediately rather than scheduled. Epochs are rounded up to the next
// minute boundary to bound the number of distinct delay queues created.
func (s *Scheduler) PublishDelayed(ctx context.Context, spec Spec, targetExchange, targetRoute string, payload []byte, minDelaySeconds int) error {
	now := s.clock.Now().Unix()

	epoch := spec.ExpireEpoch
	if epoch == 0 {
		epoch = now + spec.ExpireDelta
	}

	delaySeconds := epoch - now
	if delaySeconds <= int64(minDelaySeconds) {
		return s.broker.Publish(ctx, targetExchange, targetRoute, payload, mq.PublishOptions{})
	}

	bucketEpoch := roundUpToMinute(epoch)
	queueName := fmt.Sprintf("delay.%d", bucketEpoch)

	if err := s.broker.DeclareDelayQueue(ctx, queueName, targetExchange, targetRoute); err != nil {
		return fmt.Errorf("declare delay queue %s: %w", queueName, err)
	}

	// Per-message expiration, not a queue-level x-message-ttl: the bucket
	// queue is shared by every publisher that targets the same minute, and
	// each publish computes its own remaining time from "now" to
	// bucketEpoch. A queue-level TTL would instead have to match across
	// every caller's differing "now", and RabbitMQ rejects a re-declare of
	// the same queue with different arguments (406 PRECONDITION_FAILED).
	ttlMillis := (bucketEpoch - now) * 1000
	if ttlMillis < 0 {
		ttlMillis = 0
	}
	opts := mq.PublishOptions{Expiration: strconv.FormatInt(ttlMillis, 10)}

	// The default exchange ("") routes directly to a queue of the same
	// name; no separate bind is needed for a per-bucket delay queue.
	if err := s.broker.Publish(ctx, "", queueName, payload, opts); err != nil {
		return fmt.Errorf("publish to delay queue %s: %w", queueName, err)
	}

	s.logger.Debug("scheduled delayed hop", "queue", queueName, "target_exchange", targetExchange, "target_route", targetRoute, "delay_seconds", delaySeconds)
	return nil
}

func roundUpToMinute(epoch int64) int64 {
	return ((epoch + 59) / 60) * 60
}
