// Package serviceerr defines the flat, string-coded error taxonomy shared by
// the callback flow, the error classifier and the HTTP layer.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

// Callback outcomes. SIGNUP_REQUIRED is not a failure but travels through
// the same channel as the error codes.
const (
	CodeExpiredCode          Code = "expired_code"
	CodeMissingParams        Code = "missing_params"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeCallbackError        Code = "callback_error"
	CodeSignupRequired       Code = "SIGNUP_REQUIRED"
)

// Service codes.
const (
	CodeUnknown        Code = "unknown"
	CodeInvalidRequest Code = "invalid_request"
	CodeNotFound       Code = "not_found"

	CodeRetryNotAvailable Code = "retry_not_available"
)

var (
	ErrUnknown              = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrInvalidRequest       = &Error{Err: CodeInvalidRequest, Description: "invalid request parameters"}
	ErrNotFound             = &Error{Err: CodeNotFound, Description: "not found"}
	ErrRetryNotAvailable    = &Error{Err: CodeRetryNotAvailable, Description: "the automatic retry countdown is still running"}
	ErrMissingParams        = &Error{Err: CodeMissingParams, Description: "missing authorization code or state"}
	ErrAuthenticationFailed = &Error{Err: CodeAuthenticationFailed, Description: "authentication could not be confirmed"}
	ErrCallbackError        = &Error{Err: CodeCallbackError, Description: "unexpected error while completing sign-in"}
)

// ErrStorageNotFound is returned by storage implementations for a missing key.
var ErrStorageNotFound = errors.New("storage key not found")

type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeMissingParams:
		return http.StatusBadRequest
	case CodeExpiredCode:
		return http.StatusGone
	case CodeAuthenticationFailed, CodeSignupRequired:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRetryNotAvailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Err
	}

	return CodeUnknown
}
