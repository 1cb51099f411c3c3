// Package system provides a real clock implementation.
package system

import "time"

// Clock implements mirror.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to the microsecond precision
// SQL timestamp columns keep, so values round-trip through the store unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
