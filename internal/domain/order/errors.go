package order

import "fmt"

// ValidationError reports a structurally invalid cart. It is raised before
// any collaborator is called and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validation failures returned by Calculator.
var (
	ErrItemsRequired    = &ValidationError{Reason: "items required"}
	ErrItemsInvalid     = &ValidationError{Reason: "items invalid"}
	ErrTotalNotPositive = &ValidationError{Reason: "total must be positive"}
)

// PersistenceError reports that the order store failed to create an order.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist order: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
