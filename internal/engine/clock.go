package engine

import (
	"time"

	"github.com/roach88/orderkeep/internal/record"
)

// Clock supplies "today" for window defaults and refresh.
type Clock interface {
	Today() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Today returns the current local calendar date as a UTC midnight.
func (SystemClock) Today() time.Time {
	return record.Day(time.Now())
}
