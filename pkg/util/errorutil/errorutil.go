package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API callers.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeAllocationFailed    = "ALLOCATION_FAILED"
	CodePartialBatchFailure = "PARTIAL_BATCH_FAILURE"
	CodeDedupUnavailable    = "DEDUP_UNAVAILABLE"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
)

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
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewAllocationError reports a ticket number that could not be committed.
// Nothing was written for the failed item, so the caller may retry it.
func NewAllocationError(series string, err error) error {
	return &DomainError{
		Code:       CodeAllocationFailed,
		Message:    "ticket number allocation failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"series": series, "retryable": true},
		Err:        err,
	}
}

// NewPartialBatchFailure reports a batch that stopped at the 1-based item
// position failedIndex after committing the tickets in committed.
func NewPartialBatchFailure(committed []string, failedIndex int, err error) error {
	numbers := append([]string{}, committed...)
	return &DomainError{
		Code:       CodePartialBatchFailure,
		Message:    "batch partially committed",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"committed_ticket_numbers": numbers,
			"failed_index":             failedIndex,
		},
		Err: err,
	}
}

// PartialBatchDetails extracts the committed tickets and failing index from a
// partial batch failure.
func PartialBatchDetails(err error) (committed []string, failedIndex int, ok bool) {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != CodePartialBatchFailure {
		return nil, 0, false
	}
	committed, _ = domainErr.Details["committed_ticket_numbers"].([]string)
	failedIndex, _ = domainErr.Details["failed_index"].(int)
	return committed, failedIndex, true
}

func NewDedupUnavailable(err error) error {
	return &DomainError{
		Code:       CodeDedupUnavailable,
		Message:    "duplicate check unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
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

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
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

func MapError(err error) error {
	return ToDomainError(err)
}
