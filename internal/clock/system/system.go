// Package system provides the wall clock that stamps link records and
// thumbnail jobs.
package system

import "time"

// Clock implements linkpreview.Clock. Times are always UTC so records
// serialize with a "Z" offset regardless of the host timezone.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
