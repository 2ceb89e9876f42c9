package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/orderkeep/internal/record"
)

// ErrEmptyStore is returned by Refresh when the store holds no orders.
// Run a full update first.
var ErrEmptyStore = errors.New("store holds no orders, run an update first")

// ErrInvalidWindow is wrapped by WindowError.
var ErrInvalidWindow = errors.New("invalid date window")

// WindowError reports a fetch window whose start lies after its end.
type WindowError struct {
	Start time.Time
	End   time.Time
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("invalid date window: start %s is after end %s",
		record.FormatDate(e.Start), record.FormatDate(e.End))
}

func (e *WindowError) Unwrap() error {
	return ErrInvalidWindow
}

// IsEmptyStore returns true if err is or wraps ErrEmptyStore.
func IsEmptyStore(err error) bool {
	return errors.Is(err, ErrEmptyStore)
}
