package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sitobox/queuerouter/internal/classconfig"
	"github.com/sitobox/queuerouter/internal/clock"
	"github.com/sitobox/queuerouter/internal/collab"
	"github.com/sitobox/queuerouter/internal/dbqueue"
	"github.com/sitobox/queuerouter/internal/delay"
	"github.com/sitobox/queuerouter/internal/mq"
	"github.com/sitobox/queuerouter/internal/packet"
	"github.com/sitobox/queuerouter/internal/telemetry"
)

// Retry and Abort are the sentinel class names spliced into process_route
// by publishAbort; they never resolve through the class registry.
const (
	SentinelRetry = "Retry"
	SentinelAbort = "Abort"
)

// Broker is the narrow broker-adapter surface the router core depends on.
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, opts mq.PublishOptions) error
}

// DelayScheduler is the narrow delay-scheduler surface the router core
// depends on.
type DelayScheduler interface {
	PublishDelayed(ctx context.Context, spec delay.Spec, targetExchange, targetRoute string, payload []byte, minDelaySeconds int) error
}

// RequestPublisher is the narrow DB-update publisher surface the router
// core depends on for persisting request-row state on abort.
type RequestPublisher interface {
	PublishDBwithRequest(ctx context.Context, pkt packet.MessagePacket, opts dbqueue.RequestOptions) error
}

// Core is the router core: the sole owner of a message packet for the
// duration of one process invocation.
type Core struct {
	classes *classconfig.Registry
	broker  Broker
	delay   DelayScheduler
	db      RequestPublisher
	text    collab.MessageTextSource
	clock   clock.Clock
	logger  *slog.Logger

	cargoKey    string
	settingsKey string
}

// Config bundles Core's dependencies.
type Config struct {
	Classes     *classconfig.Registry
	Broker      Broker
	Delay       DelayScheduler
	DB          RequestPublisher
	Text        collab.MessageTextSource
	Clock       clock.Clock
	Logger      *slog.Logger
	CargoKey    string
	SettingsKey string
}

// New builds a Core. CargoKey/SettingsKey default to "cargo"/"settings".
func New(cfg Config) *Core {
	cargoKey := cfg.CargoKey
	if cargoKey == "" {
		cargoKey = "cargo"
	}
	settingsKey := cfg.SettingsKey
	if settingsKey == "" {
		settingsKey = "settings"
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	return &Core{
		classes:     cfg.Classes,
		broker:      cfg.Broker,
		delay:       cfg.Delay,
		db:          cfg.DB,
		text:        cfg.Text,
		clock:       clk,
		logger:      cfg.Logger,
		cargoKey:    cargoKey,
		settingsKey: settingsKey,
	}
}

// CargoKey and SettingsKey report the configured wire envelope keys, used
// by callers encoding/decoding packets outside PublishStart/PublishNext.
func (c *Core) CargoKey() string    { return c.cargoKey }
func (c *Core) SettingsKey() string { return c.settingsKey }

// PublishStart begins a flow: validates className is a work class with a
// non-empty process route, initializes settings, attaches cargo, and
// delegates to PublishNext.
func (c *Core) PublishStart(ctx context.Context, className string, cargo any) (packet.MessagePacket, error) {
	cfg, err := c.classes.MustWork(className)
	if err != nil {
		return packet.MessagePacket{}, ErrUnknownWorkClass
	}
	if cargo == nil {
		return packet.MessagePacket{}, ErrMissingInput
	}
	if len(cfg.ProcessRoute) == 0 {
		return packet.MessagePacket{}, ErrNoProcessRoute
	}

	pkt := packet.MessagePacket{
		Cargo: cargo,
		Settings: packet.Settings{
			ProcessRoute: append([]string(nil), cfg.ProcessRoute...),
			History:      []string{},
			RouteArgs:    map[string]packet.PublishArgs{},
			RetryReady:   false,
			RetryCount:   map[string]int{},
			RetryHistory: map[string][]packet.RetryEvent{},
			TaskStart:    c.clock.Now().Unix(),
			RecordID:     uuid.NewString(),
		},
	}
	if len(cfg.DefaultCommon) > 0 {
		pkt.Settings.Extras = cloneAnyMap(cfg.DefaultCommon)
	}

	if err := c.PublishNext(ctx, &pkt, nil); err != nil {
		return pkt, err
	}
	return pkt, nil
}

// PublishNext advances one stage: locates the next class via getNextClass,
// resolves its publish args (macro-expanded), appends it to history, and
// either schedules a delayed hop or publishes immediately.
func (c *Core) PublishNext(ctx context.Context, pkt *packet.MessagePacket, delaySeconds *int) error {
	class, pos, err := c.getNextClass(pkt)
	if err != nil {
		return err
	}
	if pos == -1 {
		telemetry.FromContext(ctx).Info("normal end", "record_id", pkt.Settings.RecordID)
		telemetry.HopsPublished.WithLabelValues("", "terminal").Inc()
		return nil
	}

	cfg, err := c.classes.MustExchange(class)
	if err != nil {
		return err
	}

	args, ok := pkt.Settings.RouteArgs[class]
	if ok {
		// Branch publish args apply to this one hop only.
		delete(pkt.Settings.RouteArgs, class)
	} else {
		routingKey := cfg.Queue
		if cfg.RouteKey != "" {
			routingKey = cfg.RouteKey
		}
		args = packet.PublishArgs{Exchange: cfg.Exchange, RoutingKey: routingKey}
	}
	args = c.expandMacroArgs(args, pkt)

	pkt.Settings.History = append(pkt.Settings.History, class)

	body, err := packet.Encode(*pkt, c.cargoKey, c.settingsKey)
	if err != nil {
		telemetry.HopsPublished.WithLabelValues(class, "encode_error").Inc()
		return fmt.Errorf("%w: %v", ErrJSONEncode, err)
	}

	if delaySeconds != nil {
		err = c.delay.PublishDelayed(ctx, delay.Spec{ExpireDelta: int64(*delaySeconds)}, args.Exchange, args.RoutingKey, body, cfg.MinDelay)
	} else {
		err = c.broker.Publish(ctx, args.Exchange, args.RoutingKey, body, mq.PublishOptions{})
	}
	if err != nil {
		telemetry.HopsPublished.WithLabelValues(class, "error").Inc()
		return fmt.Errorf("%w: %v", ErrBrokerPublishFailed, err)
	}

	telemetry.HopsPublished.WithLabelValues(class, "ok").Inc()
	return nil
}

// PublishNotify publishes to a notify class outside the main route,
// inserting className into process_route at the current position first so
// the history/route prefix invariant continues to hold on the next
// PublishNext call. publishNotify never ticks retry_count.
func (c *Core) PublishNotify(ctx context.Context, pkt *packet.MessagePacket, className, routeKey string) error {
	cfg, err := c.classes.MustNotify(className)
	if err != nil {
		return ErrUnknownNotifyClass
	}

	if err := c.SetBranchClass(pkt, className, nil); err != nil {
		return err
	}

	rk := routeKey
	if rk == "" {
		rk = cfg.Queue
	}
	args := c.expandMacroArgs(packet.PublishArgs{Exchange: cfg.Exchange, RoutingKey: rk}, pkt)

	pkt.Settings.History = append(pkt.Settings.History, className)

	body, err := packet.Encode(*pkt, c.cargoKey, c.settingsKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJSONEncode, err)
	}

	if err := c.broker.Publish(ctx, args.Exchange, args.RoutingKey, body, mq.PublishOptions{}); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerPublishFailed, err)
	}
	return nil
}

// SetBranchClass inserts className immediately before the next class in
// the route. If args is supplied, it is stored in route_args[className]
// for use by the next hop only.
func (c *Core) SetBranchClass(pkt *packet.MessagePacket, className string, args *packet.PublishArgs) error {
	_, pos, err := c.getNextClass(pkt)
	if err != nil {
		return err
	}

	route := pkt.Settings.ProcessRoute
	var newRoute []string
	if pos == -1 {
		newRoute = append(append([]string{}, route...), className)
	} else {
		newRoute = append(append([]string{}, route[:pos]...), className)
		newRoute = append(newRoute, route[pos:]...)
	}
	pkt.Settings.ProcessRoute = newRoute

	if args != nil {
		if pkt.Settings.RouteArgs == nil {
			pkt.Settings.RouteArgs = map[string]packet.PublishArgs{}
		}
		pkt.Settings.RouteArgs[className] = *args
	}
	return nil
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
