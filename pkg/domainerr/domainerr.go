// Package domainerr defines the coded error type returned by domain services.
// Transport layers translate codes to HTTP statuses; services translate store
// sentinels into these codes at the boundary.
package domainerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a domain error class.
type Code string

const (
	CodeUnauthorizedRole       Code = "unauthorized_role"
	CodeNotOwner               Code = "not_owner"
	CodeRecipientNotRegistered Code = "recipient_not_registered"
	CodeAlreadyVerified        Code = "already_verified"
	CodeDuplicateDevice        Code = "duplicate_device"
	CodeDuplicateReport        Code = "duplicate_report"
	CodeNotFound               Code = "not_found"
	CodeUnavailable            Code = "unavailable"
	CodeTimeout                Code = "timeout"
	CodeReconciliation         Code = "reconciliation"
	CodeBadRequest             Code = "bad_request"
	CodeInternal               Code = "internal"
)

// Error carries a code, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a domain error that preserves the underlying cause for
// errors.Is/errors.As chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err is a domain error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps domain error codes to HTTP statuses for the transport
// layer. Unknown codes map to 500.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorizedRole, CodeNotOwner:
		return http.StatusForbidden
	case CodeRecipientNotRegistered, CodeBadRequest:
		return http.StatusBadRequest
	case CodeAlreadyVerified, CodeDuplicateDevice, CodeDuplicateReport:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable, CodeReconciliation:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
