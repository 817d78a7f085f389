package intake

import "errors"

var (
	// ErrValidation marks user-correctable input problems.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound hides whether a document is missing or owned by someone else.
	ErrNotFound = errors.New("document not found")
)

// ValidationError carries the message shown to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "validation: " + e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Message: msg} }
