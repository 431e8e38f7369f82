package batch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sitobox/queuerouter/internal/delay"
)

// newTestStore builds a Store with DLR scheduling disabled (nil delay
// scheduler), for tests exercising only the KV operations.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestRedisClient(t), nil, nil, "", "")
}

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// fakeDelayScheduler records PublishDelayed calls instead of talking to a
// broker.
type fakeDelayScheduler struct {
	calls []fakeDelayCall
	err   error
}

type fakeDelayCall struct {
	spec            delay.Spec
	targetExchange  string
	targetRoute     string
	payload         []byte
	minDelaySeconds int
}

func (f *fakeDelayScheduler) PublishDelayed(ctx context.Context, spec delay.Spec, targetExchange, targetRoute string, payload []byte, minDelaySeconds int) error {
	f.calls = append(f.calls, fakeDelayCall{spec, targetExchange, targetRoute, payload, minDelaySeconds})
	return f.err
}

// fakeWatcher records Watch calls instead of running a real sweeper.
type fakeWatcher struct {
	watched map[string]int64
}

func (f *fakeWatcher) Watch(batchID string, ttlEpoch int64) {
	if f.watched == nil {
		f.watched = map[string]int64{}
	}
	f.watched[batchID] = ttlEpoch
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := Record{
		BatchID:   "b1",
		BatchSize: 3,
		SystemID:  "sys-1",
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BatchSize != 3 || got.SystemID != "sys-1" {
		t.Fatalf("got %+v, want batch_size=3 system_id=sys-1", got)
	}
	if got.State != string(StateProcessing) {
		t.Fatalf("got state %q, want PROCESSING default", got.State)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestStore_IncrementGoodAndBad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, Record{BatchID: "b2", BatchSize: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	good, err := store.IncrementGood(ctx, "b2")
	if err != nil {
		t.Fatalf("increment good: %v", err)
	}
	if good != 1 {
		t.Fatalf("got good_count %d, want 1", good)
	}

	bad, err := store.IncrementBad(ctx, "b2")
	if err != nil {
		t.Fatalf("increment bad: %v", err)
	}
	if bad != 1 {
		t.Fatalf("got bad_count %d, want 1", bad)
	}

	rec, err := store.Get(ctx, "b2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.GoodCount != 1 || rec.BadCount != 1 {
		t.Fatalf("got %+v, want good=1 bad=1", rec)
	}
}

func TestStore_DeliverConditionGo_DefaultsToGo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, Record{BatchID: "b3", BatchSize: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := store.DeliverConditionGo(ctx, "b3")
	if err != nil {
		t.Fatalf("deliver condition: %v", err)
	}
	if !ok {
		t.Fatal("got blocked, want GO by default")
	}

	if err := store.SetDeliverCondition(ctx, "b3", DeliverAbort); err != nil {
		t.Fatalf("set deliver condition: %v", err)
	}
	ok, err = store.DeliverConditionGo(ctx, "b3")
	if err != nil {
		t.Fatalf("deliver condition: %v", err)
	}
	if ok {
		t.Fatal("got GO, want blocked after setting ABORT")
	}
}

func TestStore_SetStateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, Record{BatchID: "b4", BatchSize: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetState(ctx, "b4", string(StateDone)); err != nil {
		t.Fatalf("set state: %v", err)
	}
	rec, err := store.Get(ctx, "b4")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != string(StateDone) {
		t.Fatalf("got state %q, want DONE", rec.State)
	}

	if err := store.Delete(ctx, "b4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "b4"); err != ErrNotFound {
		t.Fatalf("got %v after delete, want ErrNotFound", err)
	}
}

func TestStore_Create_SchedulesDLRAndWatchesWhenExpirationSet(t *testing.T) {
	client := newTestRedisClient(t)
	delaySched := &fakeDelayScheduler{}
	watcher := &fakeWatcher{}
	store := NewStore(client, delaySched, watcher, "batch.dlr", "batch.dlr")
	ctx := context.Background()

	if err := store.Create(ctx, Record{BatchID: "b5", BatchSize: 4, Expiration: 1735689600}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(delaySched.calls) != 1 {
		t.Fatalf("got %d PublishDelayed calls, want 1", len(delaySched.calls))
	}
	call := delaySched.calls[0]
	if call.spec.ExpireEpoch != 1735689600 {
		t.Fatalf("got expire epoch %d, want 1735689600", call.spec.ExpireEpoch)
	}
	if call.targetExchange != "batch.dlr" || call.targetRoute != "batch.dlr" {
		t.Fatalf("got target %s/%s, want batch.dlr/batch.dlr", call.targetExchange, call.targetRoute)
	}
	var msg DLRMessage
	if err := json.Unmarshal(call.payload, &msg); err != nil {
		t.Fatalf("decode dlr payload: %v", err)
	}
	if msg.BatchID != "b5" {
		t.Fatalf("got batch id %q, want b5", msg.BatchID)
	}

	if ttl, ok := watcher.watched["b5"]; !ok || ttl != 1735689600 {
		t.Fatalf("got watched[%q]=%d,%v, want 1735689600,true", "b5", ttl, ok)
	}
}

func TestStore_Create_SkipsDLRWhenExpirationUnset(t *testing.T) {
	delaySched := &fakeDelayScheduler{}
	watcher := &fakeWatcher{}
	store := NewStore(newTestRedisClient(t), delaySched, watcher, "batch.dlr", "batch.dlr")

	if err := store.Create(context.Background(), Record{BatchID: "b6", BatchSize: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(delaySched.calls) != 0 {
		t.Fatalf("got %d PublishDelayed calls, want 0 when Expiration is unset", len(delaySched.calls))
	}
	if _, watched := watcher.watched["b6"]; watched {
		t.Fatal("batch should not be watched when Expiration is unset")
	}
}

func TestStore_Create_PropagatesDLRSchedulingError(t *testing.T) {
	delaySched := &fakeDelayScheduler{err: errBoom}
	store := NewStore(newTestRedisClient(t), delaySched, &fakeWatcher{}, "batch.dlr", "batch.dlr")

	err := store.Create(context.Background(), Record{BatchID: "b7", BatchSize: 1, Expiration: 42})
	if err == nil {
		t.Fatal("got nil error, want the scheduling failure surfaced")
	}
}

var errBoom = errors.New("boom")
