// Package dbqueue is the DB-update publisher: it turns SQL mutations into
// messages on a dedicated updates exchange, grouped into transactions keyed
// by a transaction id, with affinity so every statement sharing a
// task_start lands on the same downstream shard regardless of shard count.
//
// The consumer side buffers statements between a "start" and a
// "commit"/"rollback" mutation and applies (or discards) them atomically
// against Postgres through pgx.
package dbqueue
