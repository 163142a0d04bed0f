// Package directory is an HTTP client for the remote user directory: salt and
// encrypted-key lookups, public-key lookups in both directions, and user
// registration. Every request carries a bearer token from a TokenSource.
package directory

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, directory.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("directory: bad request")
	ErrUnauthorized = errors.New("directory: unauthorized")
	ErrForbidden    = errors.New("directory: forbidden")
	ErrNotFound     = errors.New("directory: not found")
	ErrConflict     = errors.New("directory: conflict")
	ErrThrottled    = errors.New("directory: throttled")
	ErrServerError  = errors.New("directory: server error")

	// ErrUnexpectedStatus covers non-2xx codes with no dedicated sentinel.
	ErrUnexpectedStatus = errors.New("directory: unexpected status")
)

// DirectoryError wraps a sentinel error with the HTTP status code, the
// request ID sent with the request, and the response body for debugging.
type DirectoryError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *DirectoryError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("directory: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("directory: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpectedStatus
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
