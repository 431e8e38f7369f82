package router

import (
	"context"

	"github.com/sitobox/queuerouter/internal/dbqueue"
	"github.com/sitobox/queuerouter/internal/packet"
	"github.com/sitobox/queuerouter/internal/telemetry"
)

// AbortOptions carries the optional pieces a stage may supply when calling
// publishAbort: an explicit abort route overriding the class's configured
// one, and a message name resolved through the text source for
// request_status_detail.
type AbortOptions struct {
	AbortRoute  []string
	MessageName string
	Bindings    map[string]any
}

// PublishAbort implements the retry/abort route-surgery operation: a
// failing stage reports sito_return, and depending on retry_ready and the
// class's retry budget, either splices a Retry hop back onto the route (and
// schedules a delayed republish) or splices an Abort hop followed by the
// abort route (and persists the terminal request state).
//
// pos is read once via getNextClass before any mutation: it names the
// position immediately after className in process_route, which is where
// both splice variants operate.
func (c *Core) PublishAbort(ctx context.Context, pkt *packet.MessagePacket, className string, sitoReturn packet.SitoReturn, opts AbortOptions) error {
	pkt.Settings.SitoReturn = &sitoReturn

	_, pos, err := c.getNextClass(pkt)
	if err != nil {
		return err
	}

	cfg, cfgErr := c.classes.MustExchange(className)
	if cfgErr != nil {
		return cfgErr
	}

	retryCount := pkt.Settings.RetryCount[className]
	if pkt.Settings.RetryReady && cfg.RetryMax > 0 && retryCount < cfg.RetryMax {
		return c.publishAbortRetry(ctx, pkt, className, pos, cfg.RetrySeconds, sitoReturn)
	}
	return c.publishAbortFinal(ctx, pkt, className, pos, opts)
}

func (c *Core) publishAbortRetry(ctx context.Context, pkt *packet.MessagePacket, className string, pos int, retrySeconds int, sitoReturn packet.SitoReturn) error {
	pkt.Settings.ProcessRoute = spliceRetry(pkt.Settings.ProcessRoute, pos, className)
	pkt.Settings.History = append(pkt.Settings.History, SentinelRetry)

	if pkt.Settings.RetryCount == nil {
		pkt.Settings.RetryCount = map[string]int{}
	}
	if pkt.Settings.RetryHistory == nil {
		pkt.Settings.RetryHistory = map[string][]packet.RetryEvent{}
	}
	nextAttempt := pkt.Settings.RetryCount[className] + 1
	pkt.Settings.RetryCount[className] = nextAttempt
	pkt.Settings.RetryHistory[className] = append(pkt.Settings.RetryHistory[className], packet.RetryEvent{
		Attempt: nextAttempt,
		Reason:  sitoReturn.Description,
		AtEpoch: c.clock.Now().Unix(),
	})
	pkt.Settings.RetryReady = false

	telemetry.RetriesScheduled.WithLabelValues(className).Inc()

	delaySeconds := retrySeconds
	return c.PublishNext(ctx, pkt, &delaySeconds)
}

func (c *Core) publishAbortFinal(ctx context.Context, pkt *packet.MessagePacket, className string, pos int, opts AbortOptions) error {
	abortRoute := opts.AbortRoute
	if len(abortRoute) == 0 {
		abortRoute = c.classes.AbortRouteFor(className)
	}

	pkt.Settings.ProcessRoute = spliceAbort(pkt.Settings.ProcessRoute, pos, abortRoute)
	pkt.Settings.History = append(pkt.Settings.History, SentinelAbort)
	pkt.Settings.AbortRoute = abortRoute
	pkt.Settings.AbortStatus = reasonCode(pkt.Settings.SitoReturn)
	pkt.Settings.RequestStatus = "ABORTED"

	detail, err := c.composeMessageText(ctx, opts)
	if err != nil {
		telemetry.FromContext(ctx).Warn("abort message text lookup failed", "error", err)
	} else if detail != "" {
		pkt.Settings.RequestStatusDetail = detail
	} else if pkt.Settings.SitoReturn != nil {
		pkt.Settings.RequestStatusDetail = pkt.Settings.SitoReturn.Description
	}

	telemetry.AbortsScheduled.WithLabelValues(className).Inc()

	if c.db != nil {
		if err := c.db.PublishDBwithRequest(ctx, *pkt, dbqueue.RequestOptions{
			Update: dbqueue.RequestUpdate{
				State:    "ABORTED",
				SentTime: c.clock.Now().Unix(),
			},
		}); err != nil {
			return err
		}
	}

	return c.PublishNext(ctx, pkt, nil)
}

// spliceRetry implements the retry-path route edit: the failing class
// (at pos-1, the position getNextClass just consumed) is repeated
// immediately after a fresh Retry marker, so the next PublishNext call
// republishes to the same class. Any stale Retry markers already present
// in the unconsumed tail are dropped first to avoid accumulating no-op
// hops across repeated retries of the same stage.
//
// pos == -1 means className was the last entry in process_route; the
// splice then appends rather than inserts mid-route.
func spliceRetry(route []string, pos int, className string) []string {
	if pos == -1 {
		return append(append([]string{}, route...), SentinelRetry, className)
	}

	prefix := append([]string{}, route[:pos]...)
	tail := filterOut(route[pos:], SentinelRetry)

	out := make([]string, 0, len(prefix)+2+len(tail))
	out = append(out, prefix...)
	out = append(out, SentinelRetry, className)
	out = append(out, tail...)
	return out
}

// spliceAbort implements the abort-path route edit: everything from pos
// onward is discarded and replaced outright by abortRoute, preceded by an
// Abort marker.
func spliceAbort(route []string, pos int, abortRoute []string) []string {
	var prefix []string
	if pos == -1 {
		prefix = append([]string{}, route...)
	} else {
		prefix = append([]string{}, route[:pos]...)
	}

	out := make([]string, 0, len(prefix)+1+len(abortRoute))
	out = append(out, prefix...)
	out = append(out, SentinelAbort)
	out = append(out, abortRoute...)
	return out
}

// reasonCode extracts the short code carried in sito_return, falling back
// to a generic marker when the stage reported no structured return.
func reasonCode(ret *packet.SitoReturn) string {
	if ret == nil || ret.Code == "" {
		return "ABORT"
	}
	return ret.Code
}

// composeMessageText resolves opts.MessageName through the configured text
// source, if any, passing Bindings through untouched. Returns "" with no
// error when no message name was requested.
func (c *Core) composeMessageText(ctx context.Context, opts AbortOptions) (string, error) {
	if opts.MessageName == "" || c.text == nil {
		return "", nil
	}
	return c.text.Lookup(ctx, opts.MessageName, opts.Bindings, "", "", "")
}
