package dbqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sitobox/queuerouter/internal/packet"
)

// Reserved tag names (§3).
const (
	TagSettings     = "_sito_settings"
	TagCargo        = "_sito_cargo"
	TagHistory      = "_sito_history"
	TagStatusDetail = "_sito_status_detail"
	TagRetry        = "_sito_retry"
)

// RequestUpdate carries whichever request-row columns a caller wants
// upserted alongside the four heavy tags; zero fields are omitted. Expires
// is not written to the row: a positive value sets expires_flag on the tag
// rows.
type RequestUpdate struct {
	State        string
	SentTime     int64
	FallbackMode string
	SystemID     string
	Expires      int64
}

// RequestOptions parameterizes PublishDBwithRequest.
type RequestOptions struct {
	// Records are caller-supplied mutations emitted, in order, right
	// after "transaction start" and before the request-row upsert.
	Records []Mutation

	// Caller names the transaction id's suffix when TransactionID is
	// not set explicitly ("{record_id}_{caller|unknown_caller}").
	Caller string

	// SkipRequest omits the request-row and tag upserts entirely —
	// used when the caller only needs Records applied transactionally.
	SkipRequest bool

	TransactionID string
	Update        RequestUpdate
}

// PublishDBwithRequest emits a full transaction: start, caller records,
// then (unless skipped) an upsert of the request row plus its four heavy
// tags and an optional request_batch row, then commit — or, on any
// mid-transaction publish failure, a rollback with the original error
// surfaced to the caller (testable property 3).
func (p *Publisher) PublishDBwithRequest(ctx context.Context, pkt packet.MessagePacket, opts RequestOptions) error {
	taskStart := pkt.Settings.TaskStart

	txnID := opts.TransactionID
	if txnID == "" {
		caller := opts.Caller
		if caller == "" {
			caller = "unknown_caller"
		}
		txnID = pkt.Settings.RecordID + "_" + caller
	}

	if err := p.Publish(ctx, Start(txnID, taskStart)); err != nil {
		return fmt.Errorf("start transaction %s: %w", txnID, err)
	}

	rollback := func(cause error) error {
		if rbErr := p.Publish(ctx, Rollback(txnID, taskStart)); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", cause, rbErr)
		}
		return cause
	}

	for i := range opts.Records {
		rec := opts.Records[i]
		rec.TaskStart = taskStart
		rec.TransactionID = txnID
		if err := p.Publish(ctx, rec); err != nil {
			return rollback(fmt.Errorf("publish record %d: %w", i, err))
		}
	}

	if !opts.SkipRequest {
		mutations, err := requestMutations(pkt, opts.Update, txnID, taskStart)
		if err != nil {
			return rollback(err)
		}
		for _, m := range mutations {
			if err := p.Publish(ctx, m); err != nil {
				return rollback(fmt.Errorf("publish request upsert: %w", err))
			}
		}
	}

	if err := p.Publish(ctx, Commit(txnID, taskStart)); err != nil {
		return rollback(fmt.Errorf("commit transaction %s: %w", txnID, err))
	}
	return nil
}

// requestMutations builds the request-row upsert and its four heavy tag
// upserts, plus a request_batch row when settings carries a batch id.
func requestMutations(pkt packet.MessagePacket, update RequestUpdate, txnID string, taskStart int64) ([]Mutation, error) {
	s := pkt.Settings

	cols := []string{"id"}
	vals := []any{s.RecordID}
	if update.State != "" {
		cols = append(cols, "state")
		vals = append(vals, update.State)
	}
	if update.SentTime != 0 {
		cols = append(cols, "sent_time")
		vals = append(vals, update.SentTime)
	}
	if update.FallbackMode != "" {
		cols = append(cols, "fallback_mode")
		vals = append(vals, update.FallbackMode)
	}
	if update.SystemID != "" {
		cols = append(cols, "system_id")
		vals = append(vals, update.SystemID)
	}

	mutations := []Mutation{{
		Mode: ModeUpdate, Table: "request", Columns: cols, Values: vals,
		TaskStart: taskStart, TransactionID: txnID,
	}}

	tagMutation, err := tagUpsert(s.RecordID, update.SystemID, TagSettings, s, update.Expires, taskStart, txnID)
	if err != nil {
		return nil, err
	}
	mutations = append(mutations, tagMutation)

	tagMutation, err = tagUpsert(s.RecordID, update.SystemID, TagCargo, pkt.Cargo, update.Expires, taskStart, txnID)
	if err != nil {
		return nil, err
	}
	mutations = append(mutations, tagMutation)

	tagMutation, err = tagUpsert(s.RecordID, update.SystemID, TagHistory, s.History, update.Expires, taskStart, txnID)
	if err != nil {
		return nil, err
	}
	mutations = append(mutations, tagMutation)

	tagMutation, err = tagUpsert(s.RecordID, update.SystemID, TagStatusDetail, s.RequestStatusDetail, update.Expires, taskStart, txnID)
	if err != nil {
		return nil, err
	}
	mutations = append(mutations, tagMutation)

	if s.BatchID != "" {
		mutations = append(mutations, Mutation{
			Mode: ModeInsert, Table: "request_batch",
			Columns: []string{"request_id", "batch_id"}, Values: []any{s.RecordID, s.BatchID},
			TaskStart: taskStart, TransactionID: txnID,
		})
	}

	return mutations, nil
}

// tagUpsert serializes value (JSON-encoding it unless it is already a
// scalar string) into a request_tags upsert row.
func tagUpsert(recordID, systemID, tagName string, value any, expires int64, taskStart int64, txnID string) (Mutation, error) {
	tagValue, err := tagScalar(value)
	if err != nil {
		return Mutation{}, fmt.Errorf("encode tag %s: %w", tagName, err)
	}

	expiresFlag := 0
	if expires > 0 {
		expiresFlag = 1
	}

	return Mutation{
		Mode:          ModeInsert,
		Table:         "request_tags",
		Columns:       []string{"request_id", "system_id", "tag_name", "tag_value", "expires_flag"},
		Values:        []any{recordID, systemID, tagName, tagValue, expiresFlag},
		TaskStart:     taskStart,
		TransactionID: txnID,
	}, nil
}

func tagScalar(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
