package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestRow mirrors the request table written by dbqueue's DB-update
// consumer (§4.5): the request-row equivalent plus whichever optional
// columns were present on the upsert.
type RequestRow struct {
	ID           string
	State        string
	SystemID     string
	UserID       string
	RequestMode  string
	FallbackMode string
	SentTime     int64
	DeliveryTime int64
	Expires      int64
}

// RequestTag is one row of request_tags.
type RequestTag struct {
	RequestID   string
	SystemID    string
	TagName     string
	TagValue    string
	ExpiresFlag int
}

// RequestRepo is the read side of the request/request_tags/request_batch
// tables: the DB-update consumer (dbqueue.Consumer) owns all writes, so
// this repo never mutates rows — it exists for routerctl inspection and
// any future read API.
type RequestRepo struct {
	pool *pgxpool.Pool
}

// NewRequestRepo builds a RequestRepo over an existing pool (see repo.NewPool).
func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

// GetByID returns the request row for id.
func (r *RequestRepo) GetByID(ctx context.Context, id string) (*RequestRow, error) {
	const query = `
		SELECT id, state, system_id, user_id, request_mode, fallback_mode,
		       sent_time, delivery_time, expires
		FROM request
		WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)

	var rec RequestRow
	var userID, requestMode, fallbackMode *string
	var sentTime, deliveryTime, expires *int64

	err := row.Scan(&rec.ID, &rec.State, &rec.SystemID, &userID, &requestMode,
		&fallbackMode, &sentTime, &deliveryTime, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request %s: %w", id, err)
	}

	if userID != nil {
		rec.UserID = *userID
	}
	if requestMode != nil {
		rec.RequestMode = *requestMode
	}
	if fallbackMode != nil {
		rec.FallbackMode = *fallbackMode
	}
	if sentTime != nil {
		rec.SentTime = *sentTime
	}
	if deliveryTime != nil {
		rec.DeliveryTime = *deliveryTime
	}
	if expires != nil {
		rec.Expires = *expires
	}
	return &rec, nil
}

// ListTags returns every request_tags row for requestID, including the
// four reserved heavy tags the DB-update publisher always writes.
func (r *RequestRepo) ListTags(ctx context.Context, requestID string) ([]RequestTag, error) {
	const query = `
		SELECT request_id, system_id, tag_name, tag_value, expires_flag
		FROM request_tags
		WHERE request_id = $1
		ORDER BY tag_name ASC
	`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", requestID, err)
	}
	defer rows.Close()

	var tags []RequestTag
	for rows.Next() {
		var t RequestTag
		if err := rows.Scan(&t.RequestID, &t.SystemID, &t.TagName, &t.TagValue, &t.ExpiresFlag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListBatchMembers returns the request ids grouped under batchID via
// request_batch.
func (r *RequestRepo) ListBatchMembers(ctx context.Context, batchID string) ([]string, error) {
	const query = `SELECT request_id FROM request_batch WHERE batch_id = $1`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch members for %s: %w", batchID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
