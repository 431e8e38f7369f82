// Package clock provides an injectable wall-clock, replacing the source
// system's SQL SELECT now() pattern so time can be stubbed in tests and
// time zone conversions happen explicitly rather than by proxy through the
// database connection's session zone.
package clock

import "time"

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed is a test Clock that always returns the same instant.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }
