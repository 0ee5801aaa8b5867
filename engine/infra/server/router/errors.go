package router

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInternal  = errors.New("internal server error")
	ErrBindError = errors.New("server bind error")
)

// Stable problem codes shared with stream clients.
const (
	ErrInternalCode           = "INTERNAL_ERROR"
	ErrBadRequestCode         = "BAD_REQUEST"
	ErrUnauthorizedCode       = "UNAUTHORIZED"
	ErrForbiddenCode          = "FORBIDDEN"
	ErrNotFoundCode           = "NOT_FOUND"
	ErrConflictCode           = "CONFLICT"
	ErrRequestTimeoutCode     = "REQUEST_TIMEOUT"
	ErrPayloadTooLargeCode    = "PAYLOAD_TOO_LARGE"
	ErrRateLimitedCode        = "RATE_LIMITED"
	ErrServiceUnavailableCode = "SERVICE_UNAVAILABLE"
)

var codeStatus = map[string]int{
	ErrBadRequestCode:         http.StatusBadRequest,
	ErrUnauthorizedCode:       http.StatusUnauthorized,
	ErrForbiddenCode:          http.StatusForbidden,
	ErrNotFoundCode:           http.StatusNotFound,
	ErrConflictCode:           http.StatusConflict,
	ErrRequestTimeoutCode:     http.StatusRequestTimeout,
	ErrPayloadTooLargeCode:    http.StatusRequestEntityTooLarge,
	ErrRateLimitedCode:        http.StatusTooManyRequests,
	ErrServiceUnavailableCode: http.StatusServiceUnavailable,
}

// Error is a handler failure carrying its problem code. Err stays server-side.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error code; unknown codes are 500.
func (e *Error) Status() int {
	if status, ok := codeStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func NewServerError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapServerError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
