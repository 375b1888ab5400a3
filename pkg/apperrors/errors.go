package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a query mutation rejected before any extraction or
// versioning ran.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets callers match any validation failure with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PolicyEvaluationError wraps a failure returned by an injected view or edit
// policy. The wrapped error is passed through unmodified.
type PolicyEvaluationError struct {
	Policy string // "view" or "edit"
	Err    error
}

func (e *PolicyEvaluationError) Error() string {
	return fmt.Sprintf("%s policy evaluation failed: %v", e.Policy, e.Err)
}

func (e *PolicyEvaluationError) Unwrap() error {
	return e.Err
}

// VersionWriteError wraps a failed append of a query version. A save that
// returns this error must be treated as not having happened.
type VersionWriteError struct {
	QueryID uuid.UUID
	Err     error
}

func (e *VersionWriteError) Error() string {
	return fmt.Sprintf("failed to write version for query %s: %v", e.QueryID, e.Err)
}

func (e *VersionWriteError) Unwrap() error {
	return e.Err
}
