// Package packet defines the message packet that flows end-to-end through
// the router: an opaque cargo payload plus router-managed settings.
//
// Settings is a discriminated schema — the fields the router core reads and
// writes are named struct fields, and anything outside that known set is
// preserved in Extras so round-tripping never drops caller-supplied data.
package packet
