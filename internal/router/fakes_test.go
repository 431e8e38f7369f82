package router

import (
	"context"

	"github.com/sitobox/queuerouter/internal/dbqueue"
	"github.com/sitobox/queuerouter/internal/delay"
	"github.com/sitobox/queuerouter/internal/mq"
	"github.com/sitobox/queuerouter/internal/packet"
)

// publishedMessage records one call to fakeBroker.Publish.
type publishedMessage struct {
	exchange   string
	routingKey string
	body       []byte
}

type fakeBroker struct {
	published []publishedMessage
	err       error
}

func (f *fakeBroker) Publish(ctx context.Context, exchange, routingKey string, body []byte, opts mq.PublishOptions) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

// delayedMessage records one call to fakeDelay.PublishDelayed.
type delayedMessage struct {
	targetExchange string
	targetRoute    string
	minDelay       int
	spec           delay.Spec
}

type fakeDelay struct {
	delayed []delayedMessage
}

func (f *fakeDelay) PublishDelayed(ctx context.Context, spec delay.Spec, targetExchange, targetRoute string, payload []byte, minDelaySeconds int) error {
	f.delayed = append(f.delayed, delayedMessage{
		targetExchange: targetExchange,
		targetRoute:    targetRoute,
		minDelay:       minDelaySeconds,
		spec:           spec,
	})
	return nil
}

type fakeRequestPublisher struct {
	calls []dbqueue.RequestOptions
	err   error
}

func (f *fakeRequestPublisher) PublishDBwithRequest(ctx context.Context, pkt packet.MessagePacket, opts dbqueue.RequestOptions) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, opts)
	return nil
}

type fakeTextSource struct {
	text string
	err  error
}

func (f *fakeTextSource) Lookup(ctx context.Context, name string, bindings map[string]any, systemID, carrier, language string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}
