package recurring

import (
	"errors"
	"fmt"
)

// Sentinel errors for runner operations.
var (
	ErrNilTask       = errors.New("recurring: nil task")
	ErrEmptyName     = errors.New("recurring: task name must not be empty")
	ErrDuplicateTask = errors.New("recurring: duplicate task name")
	ErrInvalidPolicy = errors.New("recurring: invalid policy")
	ErrShuttingDown  = errors.New("recurring: runner is shutting down")
)

// PanicError wraps a value recovered from a panicking Execute call.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("recurring: task panicked: %v", e.Value)
}
