// Package util provides logging helpers and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the client, the stores and the CLI
var (
	ErrNotFound         = errors.New("record not found")
	ErrInvalidID        = errors.New("empty or invalid uuid")
	ErrValidationFailed = errors.New("validation failed")
	ErrAuthExpired      = errors.New("authentication expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNetwork          = errors.New("network error")
	ErrTimeout          = errors.New("request timed out")
	ErrSyncUnavailable  = errors.New("sync endpoint not available")
	ErrUnsupported      = errors.New("operation not supported")
)

// NotFoundError is returned when a record cannot be resolved from the
// server nor from the locally cached list.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// UnsupportedError reports an operation the entity's backend does not expose
type UnsupportedError struct {
	Entity    string
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Entity, e.Operation)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// NewUnsupportedError creates an unsupported-operation error
func NewUnsupportedError(entity, operation string) *UnsupportedError {
	return &UnsupportedError{Entity: entity, Operation: operation}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
