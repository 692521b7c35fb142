package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for entity commands.
var (
	// ErrNotWritable is returned when a command targets a read-only entity.
	ErrNotWritable = errors.New("entity: not writable")

	// ErrUnsupportedCommand is returned for a command name the entity's
	// platform does not handle.
	ErrUnsupportedCommand = errors.New("entity: unsupported command")

	// ErrInvalidParameters is returned when command parameters are missing
	// or have the wrong type.
	ErrInvalidParameters = errors.New("entity: invalid parameters")

	// ErrOutOfRange is returned when a value falls outside the entity's limits.
	ErrOutOfRange = errors.New("entity: value out of range")

	// ErrNotSupported is returned when the entity lacks the binding a
	// command needs, such as a range setpoint on a single-target climate.
	ErrNotSupported = errors.New("entity: feature not supported")

	// ErrNotFound is returned when no entity matches an id.
	ErrNotFound = errors.New("entity: not found")
)

// PartialWriteError reports a multi-register command that stopped part way.
// Registers in Applied were written and stay written; nothing is rolled back.
type PartialWriteError struct {
	Applied []string
	Failed  string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("entity: partial write: applied [%s], failed %s: %v",
		strings.Join(e.Applied, ", "), e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
