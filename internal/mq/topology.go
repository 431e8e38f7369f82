package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sitobox/queuerouter/internal/classconfig"
)

// DeclareTopology declares every exchange and queue referenced by classes,
// passively first and falling back to an active direct/non-durable declare
// when the passive probe reports the object is missing. Queues are bound
// with routing key equal to the queue name unless the class specifies a
// RouteKey override. Notify classes with no Queue configured are skipped —
// their queue is externally owned.
func (c *Connection) DeclareTopology(ctx context.Context, classes *classconfig.Registry) error {
	for _, exchange := range classes.Exchanges() {
		if err := declareExchange(c, exchange); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	for _, b := range classes.Queues() {
		if err := declareQueue(c, b.Queue); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := bindQueue(c, b.Queue, b.RoutingKey, b.Exchange); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}

// declareExchange tries a passive declare first (does the exchange already
// exist, with compatible properties) and only declares it actively — as a
// non-durable, non-internal direct exchange — when the passive probe fails.
// A passive declare closes its channel server-side on failure, so the
// active attempt runs on a freshly opened channel rather than the one the
// probe used.
func declareExchange(c *Connection, name string) error {
	probe, err := c.openChannel()
	if err != nil {
		return err
	}
	if err := probe.ExchangeDeclarePassive(name, "direct", false, false, false, false, nil); err == nil {
		closeQuietly(probe)
		return nil
	}
	closeQuietly(probe)

	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	defer closeQuietly(ch)
	return ch.ExchangeDeclare(name, "direct", false, false, false, false, nil)
}

func declareQueue(c *Connection, name string) error {
	probe, err := c.openChannel()
	if err != nil {
		return err
	}
	if _, err := probe.QueueDeclarePassive(name, false, false, false, false, nil); err == nil {
		closeQuietly(probe)
		return nil
	}
	closeQuietly(probe)

	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	defer closeQuietly(ch)
	_, err = ch.QueueDeclare(name, false, false, false, false, nil)
	return err
}

func bindQueue(c *Connection, queue, routingKey, exchange string) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	defer closeQuietly(ch)
	return ch.QueueBind(queue, routingKey, exchange, false, nil)
}

func closeQuietly(ch *amqp.Channel) {
	_ = ch.Close()
}

// DeclareQueueBinding declares exchange and queue (passive-then-active, as
// DeclareTopology does) and binds queue to exchange with routingKey. Used
// for queues that sit outside the class registry, such as the DB-update
// shard queues.
func (c *Connection) DeclareQueueBinding(ctx context.Context, exchange, queue, routingKey string) error {
	if err := declareExchange(c, exchange); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := declareQueue(c, queue); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := bindQueue(c, queue, routingKey, exchange); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}

// DeclareDelayQueue declares (or reuses) a per-minute-bucket delay queue
// whose messages dead-letter into targetExchange/targetRoute once their TTL
// expires — the mechanism the delay scheduler relies on. The queue itself
// carries no message-level TTL argument (that varies per publish and is set
// via per-message Expiration instead, see delay.Scheduler); its own
// declare arguments are therefore stable across repeated calls for the same
// bucket, and delayQueueIdleExpiryMillis bounds how long an unused bucket queue
// lingers.
func (c *Connection) DeclareDelayQueue(ctx context.Context, queueName, targetExchange, targetRoute string) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	defer closeQuietly(ch)

	args := amqp.Table{
		"x-dead-letter-exchange":    targetExchange,
		"x-dead-letter-routing-key": targetRoute,
		"x-expires":                 delayQueueIdleExpiryMillis,
	}
	if _, err := ch.QueueDeclare(queueName, false, true, false, false, args); err != nil {
		return fmt.Errorf("declare delay queue %s: %w", queueName, err)
	}
	return nil
}

// delayQueueIdleExpiryMillis is the fixed x-expires a bucket queue carries
// (24h with no consumer and no messages) so unused buckets are eventually
// reclaimed. It never varies across calls, unlike a caller-supplied TTL
// would, so repeated declares of the same bucket never disagree.
const delayQueueIdleExpiryMillis = 24 * 60 * 60 * 1000

// ErrNoChannel is returned by operations attempted before a channel has
// been established (e.g. mid-reconnect).
var ErrNoChannel = errors.New("no channel available")
