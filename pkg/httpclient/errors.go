package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Transport error codes. They follow the errno names so that callers can
// tell a refused connection from an unreachable host or a timeout.
const (
	CodeTimeout            = "ECONNABORTED"
	CodeConnRefused        = "ECONNREFUSED"
	CodeConnReset          = "ECONNRESET"
	CodeHostUnreachable    = "EHOSTUNREACH"
	CodeNetworkUnreachable = "ENETUNREACH"
	CodeNotFound           = "ENOTFOUND"
	CodeSocketTimeout      = "ETIMEDOUT"
	CodeCanceled           = "ECANCELED"
	CodeUnknown            = "EUNKNOWN"
)

// DefaultErrorMessage is used when an error body carries no message.
const DefaultErrorMessage = "Something went wrong"

// StatusError is returned when the response status is not accepted by the
// call's status validator.
type StatusError struct {
	StatusCode int
	Headers    http.Header
	// Payload is the decoded JSON body when the body is valid JSON, or the
	// raw body otherwise.
	Payload any
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: status %d: %s", e.StatusCode, e.Message)
}

// TransportError wraps a failure that happened before a response was
// received, or while reading its body.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("httpclient: %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout reports whether the call exceeded its configured timeout.
func (e *TransportError) IsTimeout() bool { return e.Code == CodeTimeout }

// DecodeError is returned when an accepted response announced as JSON
// cannot be decoded.
type DecodeError struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("httpclient: invalid JSON body with status %d: %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a call timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsTimeout()
}

// ErrorCode returns the transport error code carried by err, or "".
func ErrorCode(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// transportCode classifies a transport level failure.
func transportCode(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return CodeConnRefused
		case syscall.ECONNRESET, syscall.EPIPE:
			return CodeConnReset
		case syscall.EHOSTUNREACH:
			return CodeHostUnreachable
		case syscall.ENETUNREACH:
			return CodeNetworkUnreachable
		case syscall.ETIMEDOUT:
			return CodeSocketTimeout
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeNotFound
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return CodeSocketTimeout
	}
	return CodeUnknown
}

// errorPayload decodes body for a StatusError. The message is read from
// key when body is a JSON object holding a string there.
func errorPayload(body []byte, returnAs ReturnAs, key string) (any, string) {
	var decoded any
	isJSON := len(body) > 0 && json.Unmarshal(body, &decoded) == nil

	message := DefaultErrorMessage
	if obj, ok := decoded.(map[string]any); ok {
		if m, ok := obj[key].(string); ok {
			message = m
		}
	}

	switch {
	case returnAs != JSON:
		return body, message
	case isJSON:
		return decoded, message
	default:
		return string(body), message
	}
}
