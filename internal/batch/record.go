package batch

import (
	"strconv"
	"strings"
)

// State is the lifecycle value stored in the batch hash's state field.
// DelayedState carries its wake epoch inline (DELAYED:<epoch>) so the
// string form alone is enough to introspect a batch from redis-cli.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateAborted    State = "ABORTED"
	StateDone       State = "DONE"

	delayedPrefix = "DELAYED:"
)

// DelayedState renders the DELAYED:<epoch> state string for a batch whose
// send time has been pushed out past its min_delay threshold (see the
// ingress-side delayed-submission scenario).
func DelayedState(wakeEpoch int64) string {
	return delayedPrefix + strconv.FormatInt(wakeEpoch, 10)
}

// ParseDelayedState reports the wake epoch encoded in a DELAYED:<epoch>
// state string, and whether s was one.
func ParseDelayedState(s string) (int64, bool) {
	rest, ok := strings.CutPrefix(s, delayedPrefix)
	if !ok {
		return 0, false
	}
	epoch, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return epoch, true
}

// DeliverCondition is the external re-entry override consulted by the
// router before invoking any stage for a re-entering message.
type DeliverCondition string

const (
	DeliverGo    DeliverCondition = "GO"
	DeliverAbort DeliverCondition = "ABORT"
)

// Record mirrors the Sr_<batch_id> hash fields.
type Record struct {
	BatchID    string
	BatchSize  int
	GoodCount  int
	BadCount   int
	State      string
	Deliver    DeliverCondition
	CommonTags string
	Requests   string
	SendTime   int64
	BatchStart int64
	DelayTime  int64
	SystemID   string

	// Expiration is the batch TTL epoch: Store.Create schedules a matching
	// delayed DLR message to fire at this instant (spec.md §4.6) and
	// registers the batch with the sweeper as a backstop in case that
	// message is ever lost.
	Expiration int64
}
