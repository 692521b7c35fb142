package genesis

import "errors"

// Domain errors for the genesis device facade.
var (
	// ErrConnectivity is returned when the heat pump cannot be reached,
	// a request times out, or the response cannot be read.
	ErrConnectivity = errors.New("genesis: connectivity failure")

	// ErrUnknownRegister is returned for a register name not in the table.
	ErrUnknownRegister = errors.New("genesis: unknown register")

	// ErrReadOnly is returned when writing an input or discrete register.
	ErrReadOnly = errors.New("genesis: register is read-only")

	// ErrInvalidValue is returned when a write value cannot be encoded
	// for the target register.
	ErrInvalidValue = errors.New("genesis: invalid register value")

	// ErrUnsupportedKind is returned for an unknown heat pump kind, or a
	// register the configured kind does not provide.
	ErrUnsupportedKind = errors.New("genesis: unsupported heat pump kind")
)
