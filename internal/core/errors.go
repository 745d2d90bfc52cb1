package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. HTTP handlers map these to response classes; everything
// else wraps them with context via fmt.Errorf.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("access denied")
	ErrValidation   = errors.New("invalid input")
	ErrBatchRunning = errors.New("recurrence batch already running")
)

var (
	ErrInvalidAmount      = ValidationError("amount must be positive")
	ErrEmptyDescription   = ValidationError("empty description")
	ErrMissingDestination = ValidationError("destination account is required for transfers")
)

// ValidationError builds an error that matches ErrValidation under errors.Is.
func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
