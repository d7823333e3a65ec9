package execution

import (
	"errors"
	"fmt"
)

// ErrExecutionFailed is matched by every *ExecutionError
var ErrExecutionFailed = errors.New("order execution failed")

// ExecutionError is returned when an order could not be placed, either
// because retries ran out or because the exchange rejected it outright.
type ExecutionError struct {
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("order failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

// CancelError is a failed best-effort cancellation. It is logged, never
// propagated to callers.
type CancelError struct {
	OrderID string
	Err     error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("cancel %s: %v", e.OrderID, e.Err)
}

func (e *CancelError) Unwrap() error { return e.Err }
