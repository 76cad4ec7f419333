package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes pipeline failures.
type ErrorKind string

const (
	KindInvalidConfiguration  ErrorKind = "invalid_configuration"
	KindInvalidArgument       ErrorKind = "invalid_argument"
	KindEmbeddingUnavailable  ErrorKind = "embedding_unavailable"
	KindGenerationUnavailable ErrorKind = "generation_unavailable"
	KindGenerationMalformed   ErrorKind = "generation_malformed"
	KindIndexUnavailable      ErrorKind = "index_unavailable"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrInvalidConfiguration  = &Error{Kind: KindInvalidConfiguration}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrEmbeddingUnavailable  = &Error{Kind: KindEmbeddingUnavailable}
	ErrGenerationUnavailable = &Error{Kind: KindGenerationUnavailable}
	ErrGenerationMalformed   = &Error{Kind: KindGenerationMalformed}
	ErrIndexUnavailable      = &Error{Kind: KindIndexUnavailable}
)

// Error is a typed pipeline failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string

	// Timeout is set when the failure was caused by a deadline.
	Timeout bool
	// Transient marks failures worth retrying with backoff.
	Transient bool
	// StatusCode is the upstream HTTP status, when there was one.
	StatusCode int

	Cause error
}

// NewError returns an Error of kind. Unavailable kinds default to transient.
func NewError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Transient: kind == KindEmbeddingUnavailable || kind == KindGenerationUnavailable,
	}
}

// NewTimeoutError returns a transient, timeout-classified Error of kind.
func NewTimeoutError(kind ErrorKind, op string, cause error) *Error {
	e := NewError(kind, op, "timed out", cause)
	e.Timeout = true
	e.Transient = true
	return e
}

func (e *Error) Error() string {
	parts := make([]string, 0, 5)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, string(e.Kind))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err was classified as a timeout.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Timeout
}

// IsTransient reports whether err may succeed on retry. Malformed responses never are.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind == KindGenerationMalformed {
		return false
	}
	return e.Transient
}
