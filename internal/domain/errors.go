package domain

import "fmt"

// MissingSessionError indicates a non-initialize request arrived without a
// session identifier.
type MissingSessionError struct{}

// Error returns the error message
func (e *MissingSessionError) Error() string {
	return "session identifier required"
}

// SessionNotFoundError indicates a request referenced an unknown session.
type SessionNotFoundError struct {
	ID string
}

// Error returns the error message
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// SessionExistsError indicates an initialize request carried an identifier
// that already maps to a live session.
type SessionExistsError struct {
	ID string
}

// Error returns the error message
func (e *SessionExistsError) Error() string {
	return fmt.Sprintf("session already exists: %s", e.ID)
}

// ValidationError indicates malformed indicator input.
type ValidationError struct {
	Field  string
	Reason string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ToolNotFoundError indicates a tool was not found
type ToolNotFoundError struct {
	Name string
}

// Error returns the error message
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// ComputationError indicates the numeric engine failed or timed out for one
// configuration.
type ComputationError struct {
	Kind  Kind
	Cause error
}

// Error returns the error message
func (e *ComputationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("computation failed: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("computation failed: %s", e.Kind)
}

// Unwrap returns the underlying cause
func (e *ComputationError) Unwrap() error {
	return e.Cause
}

// NewMissingSessionError creates a MissingSessionError.
func NewMissingSessionError() *MissingSessionError {
	return &MissingSessionError{}
}

// NewSessionNotFoundError creates a SessionNotFoundError for the given ID.
func NewSessionNotFoundError(id string) *SessionNotFoundError {
	return &SessionNotFoundError{ID: id}
}

// NewSessionExistsError creates a SessionExistsError for the given ID.
func NewSessionExistsError(id string) *SessionExistsError {
	return &SessionExistsError{ID: id}
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NewToolNotFoundError creates a ToolNotFoundError.
func NewToolNotFoundError(name string) *ToolNotFoundError {
	return &ToolNotFoundError{Name: name}
}

// NewComputationError creates a ComputationError.
func NewComputationError(kind Kind, cause error) *ComputationError {
	return &ComputationError{Kind: kind, Cause: cause}
}
