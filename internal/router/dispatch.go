package router

import (
	"context"
	"errors"

	"github.com/sitobox/queuerouter/internal/packet"
	"github.com/sitobox/queuerouter/internal/telemetry"
)

// Dispatch decodes one raw delivery, looks up its stage by className, runs
// it, and drives the packet onward: success advances to the next hop via
// PublishNext, a StageError feeds PublishAbort's retry/abort machinery, and
// any other error is returned to the caller unadvanced (the caller decides
// the broker-level ack outcome).
//
// className is the class whose queue the delivery arrived on — the
// caller (the daemon's per-queue consumer loop) already knows this from
// the binding it is draining. gate may be nil when the deployment has no
// batch store wired; a non-nil gate blocks re-entry into a batch whose
// deliver_condition has been set to ABORT, per GuardBatch.
func (c *Core) Dispatch(ctx context.Context, className string, body []byte, stages *StageRegistry, gate BatchGate) error {
	pkt, err := packet.Decode(body, c.cargoKey, c.settingsKey)
	if err != nil {
		return errors.Join(ErrJSONDecode, err)
	}

	log := telemetry.WithClassName(c.logger, className)
	log = telemetry.WithRecordID(log, pkt.Settings.RecordID)
	if pkt.Settings.BatchID != "" {
		log = telemetry.WithBatchID(log, pkt.Settings.BatchID)
	}
	ctx = telemetry.WithLogger(ctx, log)

	if err := c.GuardBatch(ctx, pkt.Settings.BatchID, gate); err != nil {
		return err
	}

	fn, ok := stages.Lookup(className)
	if !ok {
		log.Warn("no stage registered for class")
		return nil
	}

	if err := fn(ctx, &pkt); err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			return c.PublishAbort(ctx, &pkt, className, packet.SitoReturn{
				Code:        stageErr.Code,
				Description: stageErr.Description,
			}, AbortOptions{})
		}
		return err
	}

	return c.PublishNext(ctx, &pkt, nil)
}
