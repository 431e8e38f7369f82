// Package router is the router core: it owns the message packet, computes
// the next stage from route and history, and implements publishStart,
// publishNext, publishNotify, setBranchClass and publishAbort — the
// invariant-preserving route surgery that is the heart of the system.
//
// The router core performs no broker, KV or SQL I/O itself; it depends on
// narrow interfaces (Broker, DelayScheduler, RequestPublisher) so its route
// algorithms can be unit-tested without any live collaborator.
package router
