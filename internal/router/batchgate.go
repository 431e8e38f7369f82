package router

import "context"

// BatchGate is the narrow batch-state surface the router core consults on
// re-entry: a message carrying a batch_id is only handed to a stage when
// the batch's deliver_condition is GO.
type BatchGate interface {
	DeliverConditionGo(ctx context.Context, batchID string) (bool, error)
}

// GuardBatch blocks re-entry into a batch whose deliver_condition has been
// set to ABORT, without invoking any stage downstream. Packets with no
// batch_id set, or with no BatchGate configured, always pass.
func (c *Core) GuardBatch(ctx context.Context, batchID string, gate BatchGate) error {
	if batchID == "" || gate == nil {
		return nil
	}
	ok, err := gate.DeliverConditionGo(ctx, batchID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBatchNotGo
	}
	return nil
}
