package dbqueue

import "errors"

var (
	ErrTransactionAborted = errors.New("db-update transaction rolled back")
	ErrNoShards           = errors.New("no db-update shards configured")
)
