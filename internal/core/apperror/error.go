// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Request errors (400)
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotSortable        = "NOT_SORTABLE"
	CodeExportNotSupported = "EXPORT_NOT_SUPPORTED"

	// Validation errors (422)
	CodeValidation = "VALIDATION_ERROR"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeCSRF         = "CSRF_MISMATCH"

	// Not found (404)
	CodeNotFound          = "NOT_FOUND"
	CodeUnknownEntityType = "UNKNOWN_ENTITY_TYPE"

	// Conflict (409)
	CodeDuplicate         = "DUPLICATE_ENTRY"
	CodeReorderFailed     = "REORDER_FAILED"
	CodeParentHasChildren = "PARENT_HAS_CHILDREN"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, ids, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// --- Factory functions ---

// NewInvalidInput creates a malformed request error (400)
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewValidation creates a validation error carrying per-field messages (422)
func NewValidation(message string, fields ...FieldError) *AppError {
	e := &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
	if len(fields) > 0 {
		e.WithDetail("errors", fields)
	}
	return e
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewUnknownEntityType is returned when an entity-type key is not registered.
func NewUnknownEntityType(key string) *AppError {
	return &AppError{
		Code:       CodeUnknownEntityType,
		Message:    fmt.Sprintf("unknown entity type %q", key),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"type": key},
	}
}

// DuplicateMessage is the single user-facing text for uniqueness violations.
func DuplicateMessage(fieldLabel string) string {
	return fmt.Sprintf("%s already exists", fieldLabel)
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, fieldLabel string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    DuplicateMessage(fieldLabel),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"entity": entity,
			"errors": []FieldError{{Field: field, Message: DuplicateMessage(fieldLabel)}},
		},
	}
}

// NewNotSortable is returned when reorder is requested on a collection without manual ordering.
func NewNotSortable(entity string) *AppError {
	return &AppError{
		Code:       CodeNotSortable,
		Message:    fmt.Sprintf("%s does not support manual ordering", entity),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity},
	}
}

// NewExportNotSupported is returned when export is requested on a non-exportable entity type.
func NewExportNotSupported(entity string) *AppError {
	return &AppError{
		Code:       CodeExportNotSupported,
		Message:    fmt.Sprintf("%s cannot be exported", entity),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity},
	}
}

// NewReorderFailed reports a rolled-back reorder batch. The caller may retry the whole batch.
func NewReorderFailed(entity string) *AppError {
	return &AppError{
		Code:       CodeReorderFailed,
		Message:    "Failed to update order, no changes were applied",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity},
	}
}

// NewParentHasChildren blocks removal of a parent that still has live children.
func NewParentHasChildren(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeParentHasChildren,
		Message:    "Cannot delete: record has related data",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewDatabase wraps a storage failure that matched no known pattern.
// The raw driver message is kept in details for operator diagnosis.
func NewDatabase(err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    "Database error",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"raw": err.Error()},
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewCSRFMismatch rejects a mutating request without a valid CSRF token (403)
func NewCSRFMismatch() *AppError {
	return &AppError{
		Code:       CodeCSRF,
		Message:    "invalid or missing CSRF token",
		HTTPStatus: http.StatusForbidden,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}
