package batch

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/sitobox/queuerouter/internal/clock"
	"github.com/sitobox/queuerouter/internal/dbqueue"
)

// Sweeper is the cron-ticked fallback for batch finalization: it scans
// batch ids it has been told to watch and, once their TTL has elapsed
// without a DLR message finalizing them, forces the transition itself.
// This never races a DLR arriving first — Finalize is idempotent, backed
// by the same upsert-by-primary-key request_batch_summary row the DLR
// consumer writes.
type Sweeper struct {
	store  *Store
	db     *dbqueue.Publisher
	clock  clock.Clock
	logger *slog.Logger

	watch map[string]int64 // batch id -> ttl epoch
}

// NewSweeper builds a Sweeper with an empty watch list.
func NewSweeper(store *Store, db *dbqueue.Publisher, clk clock.Clock, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, db: db, clock: clk, logger: logger, watch: map[string]int64{}}
}

// Watch registers batchID for TTL reconciliation at ttlEpoch. Called when
// the router creates a batch alongside its delayed DLR message.
func (s *Sweeper) Watch(batchID string, ttlEpoch int64) {
	s.watch[batchID] = ttlEpoch
}

// Unwatch drops batchID, called once the DLR consumer finalizes it so the
// sweeper never redoes work the happy path already did.
func (s *Sweeper) Unwatch(batchID string) {
	delete(s.watch, batchID)
}

// Start registers a periodic sweep with a cron.Cron runtime and runs it
// until ctx is canceled. spec is a standard 5-field cron expression; a
// minute-granularity sweep ("* * * * *") matches the delay scheduler's own
// minute-bucket rounding.
func (s *Sweeper) Start(ctx context.Context, c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("batch sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// Sweep finalizes every watched batch whose TTL has elapsed. Errors for one
// batch do not block the rest.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now().Unix()

	var expired []string
	for batchID, ttlEpoch := range s.watch {
		if ttlEpoch <= now {
			expired = append(expired, batchID)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	s.logger.Debug("sweeping expired batches", "count", len(expired))
	for _, batchID := range expired {
		if err := s.Finalize(ctx, batchID); err != nil {
			s.logger.Error("finalize batch failed", "batch_id", batchID, "error", err)
			continue
		}
		s.Unwatch(batchID)
	}
	return nil
}

// Finalize reads the batch record, decides DONE vs ABORTED from its
// counters, writes the terminal state plus a request_batch_summary row via
// the DB-update publisher, and deletes the KV entry. It is the same operation
// the DLR consumer performs on message arrival (spec.md §4.6): Sweep calls
// it as the TTL-sweep fallback when that message is ever lost, and it is
// exported so the DLR consumer itself can call it on the happy path.
func (s *Sweeper) Finalize(ctx context.Context, batchID string) error {
	rec, err := s.store.Get(ctx, batchID)
	if err != nil {
		if err == ErrNotFound {
			return nil // already finalized by the DLR path
		}
		return err
	}

	final := StateDone
	if rec.BadCount > 0 && rec.GoodCount+rec.BadCount >= rec.BatchSize {
		final = StateAborted
	}

	if err := s.store.SetState(ctx, batchID, string(final)); err != nil {
		return err
	}

	if s.db != nil {
		mutation := dbqueue.Mutation{
			Mode:      dbqueue.ModeInsert,
			Table:     "request_batch_summary",
			Columns:   []string{"batch_id", "state", "finalized_at"},
			Values:    []any{batchID, string(final), s.clock.Now().Unix()},
			TaskStart: s.clock.Now().Unix(),
		}
		if err := s.db.Publish(ctx, mutation); err != nil {
			return err
		}
	}

	return s.store.Delete(ctx, batchID)
}
