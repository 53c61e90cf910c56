package task

import "errors"

var (
	// ErrValidation is returned when a task payload is missing required fields
	ErrValidation = errors.New("invalid task payload")

	// ErrUnknownTaskType is returned when a message declares a task type no handler is registered for
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrSchemaViolation is returned when a generative response is missing required fields
	ErrSchemaViolation = errors.New("generative response violates schema")
)

// TransientError wraps infrastructure errors that should trigger a retry
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new transient error
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is wrapped as a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
