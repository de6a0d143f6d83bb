package realtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a realtime failure for translation to an
// outbound error event. Kinds map one-to-one to connection behavior:
// only KindAuthentication causes the connection to be closed.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindState          ErrorKind = "state"
	KindInternal       ErrorKind = "internal"
)

// Error is a realtime failure with a short message safe to surface to
// the client. Internal detail stays in the wrapped cause, which is
// logged server-side only.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Public returns the client-facing message string.
func (e *Error) Public() string { return e.Message }

func authenticationError(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func authorizationError(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func stateError(msg string) *Error {
	return &Error{Kind: KindState, Message: msg}
}

func internalError(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// IsKind reports whether err is a realtime Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
