// Package delay is the delay scheduler: it publishes a message that
// re-enters a target exchange/queue at or after a wall-clock epoch, using
// the broker's own TTL + dead-letter mechanism rather than an in-process
// timer, so a scheduled hop survives a worker restart.
package delay
