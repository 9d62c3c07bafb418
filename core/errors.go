package core

import "github.com/pkg/errors"

// Error kinds. Domain errors are built on top of them with NewError.
var (
	ErrNotFound    = errors.New("not found")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("permission denied")
	ErrUnavailable = errors.New("service temporarily unavailable, please retry")
)

// Error is a domain error carrying a user facing message.
// Kind is one of the error kinds above and drives the transport mapping.
type Error struct {
	Kind    error
	Message string
}

func NewError(kind error, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func (err *Error) Error() string { return err.Message }
func (err *Error) Unwrap() error { return err.Kind }

// KindOf returns the kind of err, or nil if err is not a domain error.
func KindOf(err error) error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	for _, kind := range []error{ErrNotFound, ErrBadRequest, ErrConflict, ErrForbidden, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
