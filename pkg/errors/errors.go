// Package errors defines the error kinds surfaced by the matchmaking core.
package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindInvalidState     Kind = "InvalidState"
	KindForbidden        Kind = "Forbidden"
	KindDuplicate        Kind = "Duplicate"
	KindValidation       Kind = "Validation"
	KindStoreUnavailable Kind = "StoreUnavailable"
	KindInternal         Kind = "Internal"
)

// Sentinels usable as errors.Is targets.
var (
	NotFound         = NewWithKind(KindNotFound)
	InvalidState     = NewWithKind(KindInvalidState)
	Forbidden        = NewWithKind(KindForbidden)
	Duplicate        = NewWithKind(KindDuplicate)
	Validation       = NewWithKind(KindValidation)
	StoreUnavailable = NewWithKind(KindStoreUnavailable)
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

// Error is a classified error carrying a human readable message and an optional cause.
type Error struct {
	Kind    Kind         `json:"kind"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`

	cause error
}

var _ error = (*Error)(nil)

func NewWithKind(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s]", e.Kind)
	if e.Message != "" {
		str += " " + e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// Wrap makes a copy of the error with the given cause
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// WithField returns a copy of error with a field error appended.
func (e *Error) WithField(field, message string) *Error {
	err := *e
	err.Fields = append(append([]FieldError(nil), e.Fields...), FieldError{Field: field, Message: message})
	return &err
}

// Is matches on kind so that errors.Is(err, errors.NotFound) works for any message.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of the first classified error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
