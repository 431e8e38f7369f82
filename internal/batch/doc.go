// Package batch implements the batch state store (§4.6): a Redis-backed
// counter hash per batch id tracking how many member packets have arrived
// good or bad against an expected total. Creating a batch schedules its
// delayed DLR message; a TTL sweeper finalizes any watched batch still
// present past its deadline.
package batch
