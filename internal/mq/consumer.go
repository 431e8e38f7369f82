package mq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Outcome is the acknowledgement decision a per-queue callback returns for
// a delivered message.
type Outcome int

const (
	Ack Outcome = iota
	Nack
	Requeue
)

// QueueCallback handles one raw delivery from queue and decides its ack
// outcome.
type QueueCallback func(ctx context.Context, queue string, body []byte) Outcome

// ConsumePoll multiplexes consumption across queues, running one goroutine
// per queue inside an errgroup. Each goroutine blocks on its own delivery
// channel; the loop runs until ctx is cancelled or, for debugging, until a
// queue has processed qmax messages (qmax <= 0 disables the cap).
func (c *Connection) ConsumePoll(ctx context.Context, queues []string, cb QueueCallback, qmax int) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	var capped atomic.Bool

	for _, q := range queues {
		queue := q
		g.Go(func() error {
			err := c.consumeQueue(gctx, queue, cb, qmax)
			if err == nil {
				// This queue reached qmax: stop every other queue as well.
				capped.Store(true)
				stop()
			}
			return err
		})
	}

	err := g.Wait()
	if capped.Load() && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Connection) consumeQueue(ctx context.Context, queue string, cb QueueCallback, qmax int) error {
	processed := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume(queue)
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.ReconnectNotify():
				continue
			}
		}

		c.logger.Info("consumer started", "queue", queue)

		done, runErr := c.drainDeliveries(ctx, queue, deliveries, cb, qmax, &processed)
		if runErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", queue, "error", runErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.ReconnectNotify():
				continue
			}
		}
		if done {
			return nil
		}
	}
}

func (c *Connection) setupConsume(queue string) (<-chan amqp.Delivery, error) {
	ch := c.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// drainDeliveries processes deliveries until the channel closes, ctx is
// done, or qmax is reached (returns done=true in the last case — a debug
// aid that stops this queue's goroutine without tearing down the process).
func (c *Connection) drainDeliveries(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, cb QueueCallback, qmax int, processed *int) (done bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return false, fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, queue, raw, cb)
			*processed++
			if qmax > 0 && *processed >= qmax {
				c.logger.Info("qmax reached, stopping queue consumer", "queue", queue, "qmax", qmax)
				return true, nil
			}
		}
	}
}

func (c *Connection) handleDelivery(ctx context.Context, queue string, raw amqp.Delivery, cb QueueCallback) {
	outcome := cb(ctx, queue, raw.Body)

	switch outcome {
	case Ack:
		raw.Ack(false)
	case Requeue:
		raw.Nack(false, true)
	default:
		raw.Nack(false, false)
	}
}
