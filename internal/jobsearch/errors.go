package jobsearch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a fetch failure for retry and reporting decisions.
type ErrorKind string

// Failure kinds surfaced by the client.
const (
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindServerError ErrorKind = "server_error"
	KindPermanent   ErrorKind = "permanent"
	KindParse       ErrorKind = "parse"
	KindNetwork     ErrorKind = "network"
)

// Error is the typed failure returned by client calls.
type Error struct {
	Kind       ErrorKind
	Slug       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("jobsearch %s", e.Kind)
	if e.Slug != "" {
		msg += " slug=" + e.Slug
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient per the retry taxonomy:
// timeouts, resets, 429 and 5xx retry; everything else is terminal.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindServerError, KindNetwork:
		return true
	default:
		return false
	}
}

// KindOf extracts the ErrorKind from err, mapping raw transport errors that
// escaped classification onto the taxonomy.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindNetwork
}

// IsRetryable reports whether err should be re-attempted. Context
// cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// classifyStatus maps a non-2xx HTTP status onto an ErrorKind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == 404:
		return KindNotFound
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindServerError
	default:
		return KindPermanent
	}
}
