package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code identifies a cart transport failure class.
type Code string

const (
	// CodeValidation marks input rejected locally before any network call.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNetwork marks connection-level failures (DNS, refused, reset).
	CodeNetwork Code = "NETWORK_ERROR"
	// CodeTimeout marks requests that exceeded the transport deadline.
	CodeTimeout Code = "TIMEOUT_ERROR"
	// CodeServer marks 5xx responses other than 503.
	CodeServer Code = "SERVER_ERROR"
	// CodeServiceUnavailable marks 503 and throttling responses.
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	// CodeUnauthorized marks 401 responses; handled by the session layer.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden marks 403 responses; handled by the session layer.
	CodeForbidden Code = "FORBIDDEN"
	// CodeNotFound marks 404 responses.
	CodeNotFound Code = "NOT_FOUND"
	// CodeClient marks remaining 4xx responses.
	CodeClient Code = "CLIENT_ERROR"
	// CodeUnknown marks responses the adapter could not classify.
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// Error is the typed failure produced by the transport adapter. StatusCode is
// zero for failures that never reached the server.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e == nil {
		return "transport: <nil>"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport: %s: %s", e.Code, e.Message)
}

// NewError constructs a typed transport error.
func NewError(code Code, message string, statusCode int) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusCode}
}

func validationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

var retryableStatuses = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// IsRetryable reports whether a failed operation may be replayed. Transient
// transport classes and throttling/5xx statuses qualify; everything else,
// validation errors included, does not.
func IsRetryable(err error) bool {
	te, ok := AsError(err)
	if !ok {
		return false
	}
	switch te.Code {
	case CodeNetwork, CodeTimeout, CodeServer, CodeServiceUnavailable:
		return true
	}
	_, ok = retryableStatuses[te.StatusCode]
	return ok
}

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

// RetryDelay returns the backoff before retry attempt n (zero-based):
// 1s, 2s, 4s, ... capped at 30s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := baseRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// codeForStatus buckets an HTTP status into a failure class.
func codeForStatus(status int) Code {
	switch status {
	case http.StatusRequestTimeout:
		return CodeTimeout
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	}
	switch {
	case status >= 500:
		return CodeServer
	case status >= 400:
		return CodeClient
	default:
		return CodeUnknown
	}
}
