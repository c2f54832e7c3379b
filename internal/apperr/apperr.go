// Package apperr defines the surface-stable error taxonomy shared by every
// component and rendered uniformly by the HTTP and socket facades.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the seven error kinds the system surfaces.
type Kind string

const (
	Unauthenticated     Kind = "unauthenticated"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	Validation          Kind = "validation"
	StorageUnavailable  Kind = "storage_unavailable"
	Internal            Kind = "internal"
)

// HTTPStatus maps each Kind to the status code the HTTP facade responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a taxonomy-tagged error. Message is safe to return to the caller;
// it never leaks internal detail (stack traces, SQL text, token contents).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // per-field detail, mostly set on Validation errors (BulkAcknowledge also sets it on Forbidden)
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an underlying error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithFields attaches per-field validation detail and returns the receiver.
func (e *Error) WithFields(fields map[string]string) *Error {
	e.Fields = fields
	return e
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to Internal when err carries no
// tagged Error in its chain.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return Internal
}
