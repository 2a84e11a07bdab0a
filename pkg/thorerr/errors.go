// Package thorerr defines the error taxonomy shared by the transport and
// request layers.
//
// The retry engine keys off this classification: NetworkError, TimeoutError,
// ServerError and RateLimitError are retryable; ConfigError, AuthError,
// ValidationError and ProtocolError are not.
package thorerr

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ConfigError reports an invalid configuration value. It is raised at
// construction time and never retried.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// NetworkError reports a socket-level failure: dial errors, DNS failures,
// unexpected connection closure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a bounded operation exceeding its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return e.Op + ": timed out"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ProtocolError reports a malformed or rejected protocol exchange: bad SOCKS5
// replies, non-200 CONNECT responses, TLS handshake failures.
type ProtocolError struct {
	Proto   string
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Proto + ": " + e.Message
}

// APIError is the generic error for non-success responses from the Thordata
// backend.
type APIError struct {
	Message    string
	StatusCode int
	Code       int
	RequestID  string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// HTTPStatus reports the HTTP status the error was built from. The method is
// promoted to every APIError specialization so callers can recover the status
// with one errors.As check.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// AuthError covers 401/403 responses.
type AuthError struct {
	APIError
}

// ValidationError covers 400/422 responses.
type ValidationError struct {
	APIError
}

// ServerError covers 5xx responses.
type ServerError struct {
	APIError
}

// RateLimitError covers 429/402 responses. RetryAfter, when positive, is an
// explicit wait hint that overrides computed backoff.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
}

// FromStatusCode maps an HTTP status to the matching error type.
func FromStatusCode(status int, message string) error {
	api := APIError{Message: message, StatusCode: status}
	switch {
	case status == 401 || status == 403:
		return &AuthError{APIError: api}
	case status == 429 || status == 402:
		return &RateLimitError{APIError: api}
	case status >= 500:
		return &ServerError{APIError: api}
	case status == 400 || status == 422:
		return &ValidationError{APIError: api}
	default:
		return &api
	}
}

var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// RetryableStatus reports whether an HTTP status code is worth retrying.
func RetryableStatus(code int) bool {
	return retryableStatus[code]
}

// Retryable classifies an error as transient. Auth, validation, protocol and
// configuration errors are never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var (
		netErr  *NetworkError
		toErr   *TimeoutError
		srvErr  *ServerError
		rlErr   *RateLimitError
		authErr *AuthError
		valErr  *ValidationError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &valErr):
		return false
	case errors.As(err, &netErr), errors.As(err, &toErr),
		errors.As(err, &srvErr), errors.As(err, &rlErr):
		return true
	}

	// Callers outside this SDK may hand the retry engine bare net errors.
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// StatusCode extracts the HTTP status carried by an error, or 0.
func StatusCode(err error) int {
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// RetryAfter extracts an explicit rate-limit wait hint, or 0.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return 0
}
