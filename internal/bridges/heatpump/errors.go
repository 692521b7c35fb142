package heatpump

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
)

// Domain errors for the heat pump bridge.
var (
	// ErrInvalidTopic is returned for a topic the bridge does not route.
	ErrInvalidTopic = errors.New("heatpump: invalid topic")

	// ErrInvalidPayload is returned when a message body cannot be decoded.
	ErrInvalidPayload = errors.New("heatpump: invalid payload")
)

// errorCode maps a command error onto a wire error code.
func errorCode(err error) string {
	var partial *entity.PartialWriteError
	switch {
	case errors.As(err, &partial):
		return ErrCodePartialWrite
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, entity.ErrNotFound):
		return ErrCodeNotConfigured
	case errors.Is(err, entity.ErrNotWritable), errors.Is(err, entity.ErrUnsupportedCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, entity.ErrInvalidParameters),
		errors.Is(err, entity.ErrOutOfRange),
		errors.Is(err, entity.ErrNotSupported),
		errors.Is(err, ErrInvalidPayload):
		return ErrCodeInvalidParameters
	case errors.Is(err, coordinator.ErrUpdateFailed), errors.Is(err, genesis.ErrConnectivity):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// appliedRegisters returns the registers a partial write got through.
func appliedRegisters(err error) []string {
	var partial *entity.PartialWriteError
	if errors.As(err, &partial) {
		return partial.Applied
	}
	return nil
}
