package coordinator

import (
	"errors"
	"fmt"
)

// ErrUpdateFailed matches every *UpdateFailedError via errors.Is.
var ErrUpdateFailed = errors.New("coordinator: update failed")

// ErrStopped is returned by Refresh and Write after Stop.
var ErrStopped = errors.New("coordinator: stopped")

// UpdateFailedError is returned when a fetch or write could not reach the
// heat pump. The cached data is left untouched. Callers treat it as
// retryable; the next tick tries again.
type UpdateFailedError struct {
	// Op is "fetch" or "write".
	Op string
	// Register is set for writes.
	Register string
	Err      error
}

func (e *UpdateFailedError) Error() string {
	if e.Register != "" {
		return fmt.Sprintf("coordinator: %s %s failed: %v", e.Op, e.Register, e.Err)
	}
	return fmt.Sprintf("coordinator: %s failed: %v", e.Op, e.Err)
}

func (e *UpdateFailedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpdateFailed) true.
func (e *UpdateFailedError) Is(target error) bool { return target == ErrUpdateFailed }
