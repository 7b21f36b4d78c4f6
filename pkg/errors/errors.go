// Package errors defines the coded application error carried from services
// to the HTTP envelope.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"

	"go.uber.org/multierr"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodePaymentFailed Code = "PAYMENT_FAILED"
)

// Metadata is the client-facing contract of a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	withDetails
)

func meta(status int, message string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  message,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&withDetails != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: meta(http.StatusConflict, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", retryable),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusBadGateway, "payment provider unavailable, try again", retryable|withDetails),
	CodePaymentFailed: meta(http.StatusPaymentRequired, "payment failed, try again", retryable|withDetails),
}

// MetadataFor falls back to the internal error contract for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

func (c Code) HTTPStatus() int { return MetadataFor(c).HTTPStatus }

type Error struct {
	code    Code
	message string
	details any
	cause   error
	// retry overrides the code's default when set.
	retry *bool
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// WithRetry marks the error retryable or final regardless of its code.
func (e *Error) WithRetry(ok bool) *Error {
	if e != nil {
		e.retry = &ok
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.code) + ": " + e.message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so a bare New(code, "") works as a
// sentinel with the standard errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && (t.message == "" || t.message == e.message)
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain,
// including every branch of a joined error.
func IsCode(err error, code Code) bool {
	return stdErrors.Is(err, &Error{code: code})
}

// Retryable reports whether the caller may resubmit the same step.
func Retryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	if typed.retry != nil {
		return *typed.retry
	}
	return MetadataFor(typed.code).Retryable
}

// Join merges per-item failures into one validation error whose details list
// each message.
func Join(message string, errs ...error) error {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	parts := multierr.Errors(combined)
	reasons := make([]string, 0, len(parts))
	for _, part := range parts {
		if typed := As(part); typed != nil {
			reasons = append(reasons, typed.message)
			continue
		}
		reasons = append(reasons, part.Error())
	}
	return Wrap(CodeValidation, combined, message).WithDetails(map[string]any{"reasons": reasons})
}
