package booking

import (
	"errors"
	"fmt"
)

// Error kinds returned by the core. Call sites wrap them with context;
// callers match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrSlotFull          = errors.New("slot is full")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
)

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
