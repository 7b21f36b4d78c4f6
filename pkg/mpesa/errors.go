package mpesa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
)

// ErrorKind classifies every failure the gateway client can return.
type ErrorKind string

const (
	KindAuthFailure     ErrorKind = "auth_failure"
	KindRateLimited     ErrorKind = "rate_limited"
	KindTimeout         ErrorKind = "timeout"
	KindConnectionError ErrorKind = "connection_error"
	KindRejected        ErrorKind = "rejected"
)

// GatewayError is the only error type returned by Client calls.
type GatewayError struct {
	Kind       ErrorKind
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("mpesa %s: %s", e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind when err is a GatewayError.
func KindOf(err error) (ErrorKind, bool) {
	var gw *GatewayError
	if errors.As(err, &gw) {
		return gw.Kind, true
	}
	return "", false
}

// AppError maps a gateway failure onto the API error taxonomy. Every kind is
// retryable by resubmitting the same step.
func AppError(err error) error {
	var gw *GatewayError
	if !errors.As(err, &gw) {
		return err
	}
	code := pkgerrors.CodeDependency
	switch gw.Kind {
	case KindRateLimited:
		code = pkgerrors.CodeRateLimit
	case KindRejected:
		code = pkgerrors.CodePaymentFailed
	}
	details := map[string]any{"kind": gw.Kind}
	if gw.Message != "" {
		details["reason"] = gw.Message
	}
	appErr := pkgerrors.Wrap(code, gw, "payment request failed, please try again").WithDetails(details)
	if gw.Kind == KindAuthFailure {
		appErr.WithRetry(false)
	}
	return appErr
}

func transportError(op string, err error) *GatewayError {
	kind := KindConnectionError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &GatewayError{Kind: kind, Operation: op, Err: err}
}

func statusError(op string, status int, body apiErrorBody) *GatewayError {
	kind := KindRejected
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthFailure
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= http.StatusInternalServerError:
		kind = KindConnectionError
	}
	return &GatewayError{
		Kind:       kind,
		Operation:  op,
		StatusCode: status,
		Code:       body.ErrorCode,
		Message:    body.ErrorMessage,
	}
}

type apiErrorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
