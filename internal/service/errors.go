package service

import (
	"errors"
	"fmt"
)

// Kind classifies service failures for the transport layers: HTTP maps them
// to status codes, the interaction webhook decides what to show the user.
type Kind string

const (
	KindInvalid  Kind = "invalid"
	KindDenied   Kind = "denied"
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindInternal Kind = "internal"
)

// Error is the service-level failure type. Details is optional structured
// context, e.g. the candidate list of an ambiguous mention.
type Error struct {
	Kind    Kind
	Message string
	Details any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func Invalid(msg string, details any) *Error {
	return &Error{Kind: KindInvalid, Message: msg, Details: details}
}

func Denied(msg string) *Error {
	return &Error{Kind: KindDenied, Message: msg}
}

// NotFound deliberately carries no hint whether the resource exists in a
// foreign tenant; not-found and not-authorized are indistinguishable.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", err: err}
}

// KindOf extracts the classification, defaulting unknown errors to internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// AsError returns the typed error when err carries one.
func AsError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}
