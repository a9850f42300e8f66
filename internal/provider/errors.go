package provider

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrorKind categorizes provider call failures for the pipeline's retry policy.
type ErrorKind string

const (
	// KindUnavailable covers transport failures, 5xx responses, and an open
	// circuit breaker.
	KindUnavailable ErrorKind = "UNAVAILABLE"
	// KindTimeout covers deadline exceeded and client timeouts.
	KindTimeout ErrorKind = "TIMEOUT"
	// KindQuotaExceeded covers HTTP 429 responses.
	KindQuotaExceeded ErrorKind = "QUOTA_EXCEEDED"
)

// Error wraps a provider call failure with its kind and, for quota errors,
// the backend's requested retry delay.
type Error struct {
	Err        error
	Kind       ErrorKind
	Provider   string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Kind == KindQuotaExceeded {
		return fmt.Sprintf("%s quota exceeded (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewUnavailableError wraps a transport or 5xx failure.
func NewUnavailableError(provider string, err error) *Error {
	return &Error{Err: err, Kind: KindUnavailable, Provider: provider}
}

// NewTimeoutError wraps a deadline or client-timeout failure.
func NewTimeoutError(provider string, err error) *Error {
	return &Error{Err: err, Kind: KindTimeout, Provider: provider}
}

// NewQuotaError wraps an HTTP 429. If retryAfterSecs is 0, defaults to 60s.
func NewQuotaError(provider string, err error, retryAfterSecs int) *Error {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &Error{
		Err:        err,
		Kind:       KindQuotaExceeded,
		Provider:   provider,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
	}
}

// KindOf returns the ErrorKind of err, or KindUnavailable when err is not a
// provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnavailable
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}
