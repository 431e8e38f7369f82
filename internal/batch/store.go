package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sitobox/queuerouter/internal/delay"
	"github.com/sitobox/queuerouter/internal/telemetry"
)

// ErrNotFound reports that a batch id has no Sr_<batch_id> hash.
var ErrNotFound = errors.New("batch record not found")

// DelayScheduler is the narrow delay-scheduler surface Store.Create uses to
// schedule the batch's matching DLR message (spec.md §4.6): "On batch
// creation the router also publishes a matching delayed DLR message keyed
// to batch TTL".
type DelayScheduler interface {
	PublishDelayed(ctx context.Context, spec delay.Spec, targetExchange, targetRoute string, payload []byte, minDelaySeconds int) error
}

// Watcher is the narrow sweeper surface Store.Create registers a batch
// against, so the cron-ticked TTL sweep can still finalize it if its DLR
// message is ever lost in transit.
type Watcher interface {
	Watch(batchID string, ttlEpoch int64)
}

// DLRMessage is the payload of a batch's delayed DLR message: enough for
// the DLR consumer to look the batch back up and finalize it.
type DLRMessage struct {
	BatchID string `json:"batch_id"`
}

// Store is the Redis-backed batch state store: one hash per batch id,
// mutated through atomic per-field writes so concurrent stage consumers
// never need to hold a lock.
type Store struct {
	client *redis.Client

	delay         DelayScheduler
	watcher       Watcher
	dlrExchange   string
	dlrRoutingKey string
}

// NewStore wraps an existing redis client. delay and watcher schedule and
// track the batch's DLR finalization message; dlrExchange/dlrRoutingKey name
// where that message is published (a queue bound to dlrRoutingKey on
// dlrExchange, consumed by a handler that calls Sweeper.Finalize). Passing a
// nil delay scheduler disables DLR scheduling entirely — Create then only
// writes the KV hash — for deployments that finalize batches some other way.
func NewStore(client *redis.Client, delay DelayScheduler, watcher Watcher, dlrExchange, dlrRoutingKey string) *Store {
	return &Store{client: client, delay: delay, watcher: watcher, dlrExchange: dlrExchange, dlrRoutingKey: dlrRoutingKey}
}

// SetWatcher wires the sweeper's backstop registration in once both Store
// and Sweeper have been constructed — Sweeper itself depends on a *Store,
// so the two cannot be built in a single pass.
func (s *Store) SetWatcher(w Watcher) {
	s.watcher = w
}

func hashKey(batchID string) string {
	return "Sr_" + batchID
}

// Create initializes a batch hash with its starting counters and anchors.
// Existing fields at the same key are overwritten; callers are expected to
// generate batch ids that do not collide.
func (s *Store) Create(ctx context.Context, rec Record) error {
	fields := map[string]any{
		"batch_size":        rec.BatchSize,
		"good_count":        rec.GoodCount,
		"bad_count":         rec.BadCount,
		"state":             orDefault(rec.State, string(StateProcessing)),
		"deliver_condition": orDefault(string(rec.Deliver), string(DeliverGo)),
		"common_tags":       rec.CommonTags,
		"requests":          rec.Requests,
		"send_time":         rec.SendTime,
		"batch_start":       rec.BatchStart,
		"delay_time":        rec.DelayTime,
		"system_id":         rec.SystemID,
	}
	if err := s.client.HSet(ctx, hashKey(rec.BatchID), fields).Err(); err != nil {
		return fmt.Errorf("create batch %s: %w", rec.BatchID, err)
	}

	if s.delay != nil && rec.Expiration > 0 {
		payload, err := json.Marshal(DLRMessage{BatchID: rec.BatchID})
		if err != nil {
			return fmt.Errorf("encode dlr message for %s: %w", rec.BatchID, err)
		}
		spec := delay.Spec{ExpireEpoch: rec.Expiration}
		if err := s.delay.PublishDelayed(ctx, spec, s.dlrExchange, s.dlrRoutingKey, payload, 0); err != nil {
			return fmt.Errorf("schedule dlr for batch %s: %w", rec.BatchID, err)
		}
		if s.watcher != nil {
			s.watcher.Watch(rec.BatchID, rec.Expiration)
		}
	}
	telemetry.BatchTransitions.WithLabelValues(string(StateProcessing)).Inc()
	return nil
}

// IncrementGood atomically bumps good_count and returns the new value.
func (s *Store) IncrementGood(ctx context.Context, batchID string) (int64, error) {
	n, err := s.client.HIncrBy(ctx, hashKey(batchID), "good_count", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment good_count for %s: %w", batchID, err)
	}
	return n, nil
}

// IncrementBad atomically bumps bad_count and returns the new value.
func (s *Store) IncrementBad(ctx context.Context, batchID string) (int64, error) {
	n, err := s.client.HIncrBy(ctx, hashKey(batchID), "bad_count", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment bad_count for %s: %w", batchID, err)
	}
	return n, nil
}

// SetState writes the state field, emitting a transition metric.
func (s *Store) SetState(ctx context.Context, batchID string, state string) error {
	if err := s.client.HSet(ctx, hashKey(batchID), "state", state).Err(); err != nil {
		return fmt.Errorf("set state for %s: %w", batchID, err)
	}
	telemetry.BatchTransitions.WithLabelValues(state).Inc()
	return nil
}

// DeliverCondition reads the deliver_condition field, defaulting to GO when
// the field is unset (batch never overridden).
func (s *Store) DeliverCondition(ctx context.Context, batchID string) (DeliverCondition, error) {
	val, err := s.client.HGet(ctx, hashKey(batchID), "deliver_condition").Result()
	if err == redis.Nil {
		return DeliverGo, nil
	}
	if err != nil {
		return "", fmt.Errorf("read deliver_condition for %s: %w", batchID, err)
	}
	return DeliverCondition(val), nil
}

// DeliverConditionGo reports whether batchID is currently clear to re-enter
// the router (deliver_condition == GO), satisfying router.BatchGate.
func (s *Store) DeliverConditionGo(ctx context.Context, batchID string) (bool, error) {
	cond, err := s.DeliverCondition(ctx, batchID)
	if err != nil {
		return false, err
	}
	return cond == DeliverGo, nil
}

// SetDeliverCondition writes the external re-entry override.
func (s *Store) SetDeliverCondition(ctx context.Context, batchID string, cond DeliverCondition) error {
	if err := s.client.HSet(ctx, hashKey(batchID), "deliver_condition", string(cond)).Err(); err != nil {
		return fmt.Errorf("set deliver_condition for %s: %w", batchID, err)
	}
	return nil
}

// Get reads the full record for batchID.
func (s *Store) Get(ctx context.Context, batchID string) (Record, error) {
	vals, err := s.client.HGetAll(ctx, hashKey(batchID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	if len(vals) == 0 {
		return Record{}, ErrNotFound
	}

	rec := Record{
		BatchID:    batchID,
		State:      vals["state"],
		Deliver:    DeliverCondition(vals["deliver_condition"]),
		CommonTags: vals["common_tags"],
		Requests:   vals["requests"],
		SystemID:   vals["system_id"],
	}
	rec.BatchSize, _ = strconv.Atoi(vals["batch_size"])
	rec.GoodCount, _ = strconv.Atoi(vals["good_count"])
	rec.BadCount, _ = strconv.Atoi(vals["bad_count"])
	rec.SendTime, _ = strconv.ParseInt(vals["send_time"], 10, 64)
	rec.BatchStart, _ = strconv.ParseInt(vals["batch_start"], 10, 64)
	rec.DelayTime, _ = strconv.ParseInt(vals["delay_time"], 10, 64)
	return rec, nil
}

// Delete removes the batch hash, called once a batch has been finalized to
// SQL via the TTL sweeper or the DLR consumer.
func (s *Store) Delete(ctx context.Context, batchID string) error {
	return s.client.Del(ctx, hashKey(batchID)).Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
