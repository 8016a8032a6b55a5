package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrRemoteService     = errors.New("remote service error")
	ErrConflict          = errors.New("conflict")
)

// Error carries a readable message and unwraps to one of the sentinel kinds
// above, optionally also to an underlying cause.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return newError(ErrInvalidTransition, format, args...)
}

func InvalidState(format string, args ...interface{}) error {
	return newError(ErrInvalidState, format, args...)
}

func Remote(format string, args ...interface{}) error {
	return newError(ErrRemoteService, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

// RemoteCause wraps a transport failure (timeout, refused connection, bad
// payload) as a remote service error while keeping the cause inspectable.
func RemoteCause(cause error, format string, args ...interface{}) error {
	return &Error{Kind: ErrRemoteService, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// HTTPStatus maps an error onto the response code the API layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRemoteService):
		return http.StatusBadGateway
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
