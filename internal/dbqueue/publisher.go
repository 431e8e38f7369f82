package dbqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/sitobox/queuerouter/internal/mq"
	"github.com/sitobox/queuerouter/internal/telemetry"
)

// rawPublisher is the narrow publish surface the publisher needs from the
// broker adapter.
type rawPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, opts mq.PublishOptions) error
}

// Publisher fans DB mutations out across a fixed shard list, using
// rendezvous hashing on task_start so every mutation sharing a transaction
// lands on the same shard regardless of how many shards are configured
// (testable property 4).
type Publisher struct {
	broker   rawPublisher
	exchange string
	hasher   *rendezvous.Rendezvous
	shards   []string
	logger   *slog.Logger
}

// NewPublisher builds a Publisher fanning out over shards (e.g.
// "db.updates.0", "db.updates.1", ...) published to exchange.
func NewPublisher(broker rawPublisher, exchange string, shards []string, logger *slog.Logger) (*Publisher, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}
	hasher := rendezvous.New(shards, xxhash.Sum64String)
	return &Publisher{broker: broker, exchange: exchange, hasher: hasher, shards: shards, logger: logger}, nil
}

// ShardFor returns the shard (routing key) a given task_start hashes to.
// Testable property 4 requires this be a pure function of taskStart alone.
func (p *Publisher) ShardFor(taskStart int64) string {
	return p.hasher.Lookup(strconv.FormatInt(taskStart, 10))
}

// Publish routes one mutation to its affinity shard.
func (p *Publisher) Publish(ctx context.Context, m Mutation) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation: %w", err)
	}

	shard := p.ShardFor(m.TaskStart)
	if err := p.broker.Publish(ctx, p.exchange, shard, body, mq.PublishOptions{}); err != nil {
		return fmt.Errorf("publish db mutation to %s: %w", shard, err)
	}

	telemetry.DBMutationsPublished.WithLabelValues(string(m.Mode)).Inc()
	p.logger.Debug("published db mutation", "mode", m.Mode, "shard", shard, "task_start", m.TaskStart)
	return nil
}

// PublishAll publishes a sequence of mutations in order, stopping and
// returning the first error. It publishes no rollback frame itself.
func (p *Publisher) PublishAll(ctx context.Context, ms ...Mutation) error {
	for _, m := range ms {
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
