package motion

import (
	"errors"
	"fmt"
)

// ErrLimitReached reports that a move was truncated at the travel limit.
// The motor stopped at the boundary; the step counter is still valid.
var ErrLimitReached = errors.New("travel limit reached")

// ErrMoveCancelled reports that an in-flight finite move was interrupted
// before its step budget was exhausted.
var ErrMoveCancelled = errors.New("move cancelled")

// DriverFault wraps a GPIO failure during motion. The step counter holds
// the last confirmed value: steps are counted only after a pulse completes.
type DriverFault struct {
	Err error
}

func (f *DriverFault) Error() string {
	return fmt.Sprintf("driver fault: %v", f.Err)
}

func (f *DriverFault) Unwrap() error {
	return f.Err
}
