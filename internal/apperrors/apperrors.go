// Package apperrors defines the error taxonomy shared by the dividis services.
//
// Every error carries a Kind (validation, not found, persistence, ...) and a
// stable code of the form "{operation}.{reason}". Callers branch on the kind
// with errors.Is against the exported sentinels and surface the code to
// clients.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindPersistence     Kind = "persistence"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindInternal        Kind = "internal"
)

var (
	// ErrValidation matches errors caused by bad input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches errors for absent documents or entities.
	ErrNotFound = errors.New("not found")
	// ErrPersistence matches remote read or write failures.
	ErrPersistence = errors.New("persistence failed")
	// ErrUnauthenticated matches user-scoped operations attempted without a user id.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden matches operations the caller is not allowed to perform.
	ErrForbidden = errors.New("forbidden")
	// ErrInternal matches misconfiguration and programming errors.
	ErrInternal = errors.New("internal error")
)

// Error is a classified error with an operation-scoped code.
type Error struct {
	kind   Kind
	code   string
	reason string
	err    error
}

// New builds a classified error. The cause may be nil.
func New(kind Kind, operation, reason string, cause error) error {
	return &Error{
		kind:   kind,
		code:   fmt.Sprintf("%s.%s", operation, reason),
		reason: reason,
		err:    cause,
	}
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(operation, reason string, cause error) error {
	return New(KindValidation, operation, reason, cause)
}

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(operation, reason string, cause error) error {
	return New(KindNotFound, operation, reason, cause)
}

// Persistence is shorthand for New(KindPersistence, ...).
func Persistence(operation, reason string, cause error) error {
	return New(KindPersistence, operation, reason, cause)
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{sentinelFor(e.kind)}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

// Kind returns the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the "{operation}.{reason}" code.
func (e *Error) Code() string {
	return e.code
}

// Reason returns the reason segment of the code.
func (e *Error) Reason() string {
	return e.reason
}

// KindOf returns the kind of the outermost classified error in the chain, or
// KindInternal when err carries no classification.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return KindInternal
}

// CodeOf returns the code of the outermost classified error in the chain.
func CodeOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

// ReasonOf returns the reason of the outermost classified error in the chain.
func ReasonOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.reason
	}
	return ""
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindPersistence:
		return ErrPersistence
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindForbidden:
		return ErrForbidden
	default:
		return ErrInternal
	}
}
