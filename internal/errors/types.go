// Package errors defines the error taxonomy shared by the RPC dispatcher,
// HTTP transport and skill handlers. Each request-level failure mode gets a
// typed error so the edges can map it to the right HTTP status or JSON-RPC
// code without string matching.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports bad caller input. Surfaced as JSON-RPC -32602 or
// HTTP 400 depending on the entry point.
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

// NewValidationError creates a validation error for a named parameter.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a lookup miss on a caller-supplied identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a not-found error for a resource and identifier.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// UnauthorizedError reports a missing or unknown bearer token.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return e.Reason
}

// ExpiredError reports a known bearer token whose expiry has passed.
type ExpiredError struct {
	Name      string
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("API key %q expired at %s", e.Name, e.ExpiredAt.Format(time.RFC3339))
}

// ProviderError reports a failed, timed-out or unparseable call to the
// external generation backend. It is stored in a task's error field and never
// crashes the background execution path.
type ProviderError struct {
	Err     error
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with a caller-facing message.
func NewProviderError(err error, message string) *ProviderError {
	return &ProviderError{Err: err, Message: message}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized reports whether err is an auth failure, expiry included.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	var ee *ExpiredError
	return errors.As(err, &ue) || errors.As(err, &ee)
}

// IsProvider reports whether err came from the generation backend.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
