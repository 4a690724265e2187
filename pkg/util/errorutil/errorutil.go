package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API callers.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidStatus     = "INVALID_STATUS"
	CodeInvalidCaseStatus = "INVALID_CASE_STATUS"
	CodeDuplicateAction   = "DUPLICATE_ACTION"
	CodeIdentityExhausted = "IDENTITY_EXHAUSTED"
	CodeStorage           = "STORAGE_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
)

const tryAgainMessage = "service temporarily unavailable, please try again"

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInvalidStatus(value string, allowed []string) error {
	return NewDomainError(CodeInvalidStatus, fmt.Sprintf("invalid status %q", value), http.StatusBadRequest,
		map[string]any{"allowed": allowed})
}

func NewInvalidCaseStatus(value string, allowed []string) error {
	return NewDomainError(CodeInvalidCaseStatus, fmt.Sprintf("invalid case status %q", value), http.StatusBadRequest,
		map[string]any{"allowed": allowed})
}

func NewDuplicateAction(ticketNumber, action string) error {
	return NewDomainError(CodeDuplicateAction, "action already applied", http.StatusConflict,
		map[string]any{"ticket_number": ticketNumber, "action": action})
}

// NewIdentityExhausted hides the retry detail from callers; the cause stays in Err.
func NewIdentityExhausted(attempts int) error {
	return &DomainError{
		Code:       CodeIdentityExhausted,
		Message:    tryAgainMessage,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        fmt.Errorf("no unique ticket number after %d attempts", attempts),
	}
}

// NewStorageError wraps a persistence failure without leaking it to callers.
func NewStorageError(err error) error {
	return &DomainError{
		Code:       CodeStorage,
		Message:    tryAgainMessage,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
