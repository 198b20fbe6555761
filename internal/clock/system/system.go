// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements library.Clock. Times are UTC and truncated to
// microseconds so values written to timestamptz columns read back equal.
type Clock struct{}

// New returns a wall clock.
func New() Clock { return Clock{} }

// Now returns the current UTC time at microsecond precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
