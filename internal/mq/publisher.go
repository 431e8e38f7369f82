package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sitobox/queuerouter/internal/telemetry"
)

// Publisher publishes raw payloads to broker exchanges. It implements
// router.Broker.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// PublishOptions tunes an individual publish call.
type PublishOptions struct {
	// Persistent marks the message to survive a broker restart. The
	// router's default publish path leaves this false: acks are
	// disabled for throughput (§4.2), so persistence buys little
	// without publisher confirms.
	Persistent bool

	// ContentType defaults to "application/json".
	ContentType string

	// Expiration sets the AMQP per-message TTL (milliseconds, decimal
	// string) independently of any queue-level x-message-ttl. The delay
	// scheduler uses this so one shared bucket queue can serve publishes
	// made at different wall-clock times without needing a matching
	// per-queue TTL argument.
	Expiration string
}

// Publish sends body to exchange/routingKey, best-effort (ack disabled).
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, opts PublishOptions) error {
	start := time.Now()
	err := p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		mode := amqp.Transient
		if opts.Persistent {
			mode = amqp.Persistent
		}
		contentType := opts.ContentType
		if contentType == "" {
			contentType = "application/json"
		}

		return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: mode,
			Timestamp:    time.Now(),
			Expiration:   opts.Expiration,
			Body:         body,
		})
	})
	telemetry.BrokerPublishDuration.WithLabelValues(exchange).Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message", "exchange", exchange, "routing_key", routingKey, "bytes", len(body))
	return nil
}
