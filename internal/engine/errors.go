package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies collaborator failures for retry decisions.
type ErrorKind string

const (
	KindTransient   ErrorKind = "transient"    // network timeout, upstream 5xx
	KindRateLimited ErrorKind = "rate_limited" // upstream 429
	KindValidation  ErrorKind = "validation"   // content violates platform constraints
	KindAuth        ErrorKind = "auth"         // credentials invalid or expired
	KindNotFound    ErrorKind = "not_found"    // unknown account or workflow id
	KindUnknown     ErrorKind = "unknown"      // unclassified, treated as terminal
)

// Retryable reports whether errors of this kind are worth re-attempting.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Error is a classified collaborator error. The raw detail is always
// preserved for diagnostics.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error with a formatted detail message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error without losing it.
func WrapError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// ErrRunNotFound is returned for status/cancel on an unknown workflow id.
var ErrRunNotFound = Errorf(KindNotFound, "workflow not found")

// StatusError wraps an HTTP status code from an upstream API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusRequestTimeout:
		return KindTransient
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindValidation
	}
	return KindUnknown
}

// Classify maps any collaborator error to an ErrorKind. Unknown errors are
// never retried; their detail stays attached to the attempt record.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}

	var se *StatusError
	if errors.As(err, &se) {
		return KindForStatus(se.StatusCode)
	}

	// Call timeouts are transient; cancellation is not.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}

	// Connection errors (dial failures, connection refused, etc.)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient
	}

	// Timeout errors (net.Error includes OpError, so check after OpError)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	return KindUnknown
}
