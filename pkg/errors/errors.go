// Package errors provides the error types used across policytool.
// Each type answers one question for the caller: may the operation be
// retried, and if not, what has to be fixed before running again.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Sentinel errors.
var (
	// ErrNotFound indicates that a requested entity or policy was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingVariable indicates that a template referenced an unknown variable
	ErrMissingVariable = errors.New("missing template variable")

	// ErrConfig indicates a configuration problem that retrying cannot fix
	ErrConfig = errors.New("configuration error")

	// ErrServiceUnavailable indicates that a remote service answered with a 5xx
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrPartialFailure indicates that a batch of operations partially failed
	ErrPartialFailure = errors.New("partial failure")
)

// NotFoundError reports entities of one kind that are listed in the
// desired state but absent from the remote service.
type NotFoundError struct {
	Run      int
	Resource string
	IDs      []string
	Service  string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	service := e.Service
	if service == "" {
		service = "catalog"
	}
	ids := strings.Join(e.IDs, ", ")
	if e.Run > 0 {
		return fmt.Sprintf("run:%d the %s(s) %s does not exist in %s", e.Run, e.Resource, ids, service)
	}
	return fmt.Sprintf("%s %s not found in %s", e.Resource, ids, service)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource string, ids ...string) *NotFoundError {
	return &NotFoundError{Resource: resource, IDs: ids}
}

// ValidationError represents a validation failure of input data,
// for example a policy template or a tag file row.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// TemplateError is returned when a placeholder cannot be resolved.
type TemplateError struct {
	Variable string
}

// Error implements the error interface
func (e *TemplateError) Error() string {
	return fmt.Sprintf("missing template variable %q", e.Variable)
}

// Is implements errors.Is support
func (e *TemplateError) Is(target error) bool {
	return target == ErrMissingVariable
}

// NewTemplateError creates a new TemplateError
func NewTemplateError(variable string) *TemplateError {
	return &TemplateError{Variable: variable}
}

// APIError represents an unexpected response from a remote service
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Service, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	if e.StatusCode == 404 {
		return target == ErrNotFound
	}
	if e.StatusCode >= 500 {
		return target == ErrServiceUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{
		Service:    service,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// PartialFailureError collects the failed subset of a batch of
// independent operations on one entity. Succeeded items are not listed.
type PartialFailureError struct {
	Operation string
	Entity    string
	Failed    []string
	Err       error
}

// Error implements the error interface
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("failed to %s %s on %s: %v", e.Operation, strings.Join(e.Failed, ", "), e.Entity, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// Errors returns the individual failures.
func (e *PartialFailureError) Errors() []error {
	return multierr.Errors(e.Err)
}

// PartialFailure accumulates per-item outcomes of a batch. The zero
// value is ready to use.
type PartialFailure struct {
	failed []string
	err    error
}

// Record notes the outcome of one item. Nil errors are ignored.
func (p *PartialFailure) Record(item string, err error) {
	if err == nil {
		return
	}
	p.failed = append(p.failed, item)
	p.err = multierr.Append(p.err, err)
}

// Failed returns the items recorded as failed.
func (p *PartialFailure) Failed() []string {
	return p.failed
}

// Err returns a *PartialFailureError when any item failed, else nil.
func (p *PartialFailure) Err(operation, entity string) error {
	if p.err == nil {
		return nil
	}
	return &PartialFailureError{
		Operation: operation,
		Entity:    entity,
		Failed:    p.failed,
		Err:       p.err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "csv"
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("parse error in %s at %s:%d:%d: %s", e.Format, e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open", "request"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsMissingVariable checks if an error is an unresolved template variable
func IsMissingVariable(err error) bool {
	return errors.Is(err, ErrMissingVariable)
}

// IsPartialFailure checks if an error is a partial batch failure
func IsPartialFailure(err error) bool {
	return errors.Is(err, ErrPartialFailure)
}

// IsRetryable reports whether running the failed operation again may
// succeed. Configuration, validation and template errors are fatal.
// A per-call timeout is retryable; whether the caller gave up is decided
// from the caller's context, not from the error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsConfigError(err) || IsValidationError(err) || IsMissingVariable(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapAPI wraps an error as an APIError
func WrapAPI(service string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{
		Service:    service,
		StatusCode: statusCode,
		Message:    err.Error(),
		Err:        err,
	}
}
