package dbqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Consumer applies buffered mutations transactionally against Postgres,
// one pgx.Tx per transaction_id, exactly as the mutations arrive between a
// "start" and a "commit"/"rollback" control frame.
type Consumer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu     sync.Mutex
	buffer map[string][]Mutation
}

// NewConsumer builds a Consumer against pool.
func NewConsumer(pool *pgxpool.Pool, logger *slog.Logger) *Consumer {
	return &Consumer{pool: pool, logger: logger, buffer: make(map[string][]Mutation)}
}

// Handle applies one delivered mutation: buffering statements, and on a
// commit frame, executing the buffered statements inside one transaction;
// on a rollback frame, discarding them.
func (c *Consumer) Handle(ctx context.Context, m Mutation) error {
	if m.Mode != ModeTransaction {
		c.mu.Lock()
		c.buffer[m.TransactionID] = append(c.buffer[m.TransactionID], m)
		c.mu.Unlock()
		return nil
	}

	switch m.TransactionMode {
	case TxnStart:
		c.mu.Lock()
		c.buffer[m.TransactionID] = nil
		c.mu.Unlock()
		return nil

	case TxnRollback:
		c.mu.Lock()
		delete(c.buffer, m.TransactionID)
		c.mu.Unlock()
		c.logger.Warn("db transaction rolled back", "transaction_id", m.TransactionID)
		return nil

	case TxnCommit:
		c.mu.Lock()
		statements := c.buffer[m.TransactionID]
		delete(c.buffer, m.TransactionID)
		c.mu.Unlock()

		return c.applyTransaction(ctx, m.TransactionID, statements)

	default:
		return fmt.Errorf("unknown transaction mode %q", m.TransactionMode)
	}
}

func (c *Consumer) applyTransaction(ctx context.Context, transactionID string, statements []Mutation) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction %s: %w", transactionID, err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range statements {
		query, args, err := buildStatement(stmt)
		if err != nil {
			return fmt.Errorf("build statement %d of %s: %w", i, transactionID, err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("exec statement %d of %s: %w", i, transactionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction %s: %w", transactionID, err)
	}

	c.logger.Debug("db transaction committed", "transaction_id", transactionID, "statements", len(statements))
	return nil
}

// buildStatement renders a Mutation into upsert-by-primary-key SQL: every
// insert/update mutation is safe to replay (at-least-once delivery),
// matching the ownership rule that downstream mutations must be idempotent.
func buildStatement(m Mutation) (string, []any, error) {
	if len(m.Columns) != len(m.Values) {
		return "", nil, fmt.Errorf("columns/values length mismatch for table %s", m.Table)
	}

	switch m.Mode {
	case ModeInsert, ModeUpdate:
		return upsertStatement(m)
	case ModeDelete:
		return deleteStatement(m)
	default:
		return "", nil, fmt.Errorf("unsupported mutation mode %q", m.Mode)
	}
}

func upsertStatement(m Mutation) (string, []any, error) {
	placeholders := make([]string, len(m.Columns))
	updates := make([]string, 0, len(m.Columns))
	args := make([]any, len(m.Values))

	for i, col := range m.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = m.Values[i]
		if col != primaryKeyColumn(m.Table) {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		m.Table,
		strings.Join(m.Columns, ", "),
		strings.Join(placeholders, ", "),
		primaryKeyColumn(m.Table),
		strings.Join(updates, ", "),
	)
	if len(updates) == 0 {
		query = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			m.Table, strings.Join(m.Columns, ", "), strings.Join(placeholders, ", "), primaryKeyColumn(m.Table),
		)
	}

	return query, args, nil
}

func deleteStatement(m Mutation) (string, []any, error) {
	conds := make([]string, 0, len(m.Where))
	args := make([]any, 0, len(m.Where))
	i := 1
	for col, val := range m.Where {
		conds = append(conds, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", m.Table, strings.Join(conds, " AND "))
	return query, args, nil
}

// primaryKeyColumn maps the logical tables (§6) to their conflict target.
func primaryKeyColumn(table string) string {
	switch table {
	case "request":
		return "id"
	case "request_tags":
		return "request_id, tag_name"
	case "request_batch":
		return "request_id, batch_id"
	case "request_batch_summary":
		return "batch_id"
	default:
		return "id"
	}
}
