package service

import (
	"errors"
	"fmt"
)

// Kind classifies service failures; the HTTP layer maps each kind to a status code.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindDuplicate      Kind = "duplicate"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

// FieldViolation describes one rejected input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the structured failure returned by services.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldViolation
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string, details ...FieldViolation) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Duplicate(message string) *Error {
	return &Error{Kind: KindDuplicate, Message: message}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Internal wraps an unexpected failure. Its message is never shown to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// AsError extracts the service error from err's chain.
func AsError(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// KindOf reports the kind of err; errors not produced by this package are internal.
func KindOf(err error) Kind {
	if typed, ok := AsError(err); ok {
		return typed.Kind
	}
	return KindInternal
}
