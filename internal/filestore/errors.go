// Package filestore provides an HTTP client for the file store object-storage
// API: CSRF/cookie session login, bearer credential handling with a single
// automatic re-login on 401, raw downloads and multipart content uploads.
package filestore

import (
	"errors"
	"fmt"
	"net/http"
)

// Authentication failures. All are terminal for the current operation.
var (
	ErrCSRFFetchFailed         = errors.New("filestore: fetching CSRF token failed")
	ErrLoginRequestFailed      = errors.New("filestore: login request failed")
	ErrCredentialCookieMissing = errors.New("filestore: credential cookie not found after login")
)

// Precondition failures, reported before any network call is made.
var (
	ErrNotAuthenticated = errors.New("filestore: not authenticated, login first")
	ErrNoBucketSelected = errors.New("filestore: no bucket selected")
)

// ErrMalformedResponse is returned when a success response that should carry
// JSON cannot be decoded.
var ErrMalformedResponse = errors.New("filestore: malformed response body")

// ErrTransport is the sentinel behind every TransportError.
var ErrTransport = errors.New("filestore: transport failure")

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, filestore.ErrNotFound) to check.
var (
	ErrBadRequest      = errors.New("filestore: bad request")
	ErrUnauthorized    = errors.New("filestore: unauthorized")
	ErrForbidden       = errors.New("filestore: forbidden")
	ErrNotFound        = errors.New("filestore: not found")
	ErrConflict        = errors.New("filestore: conflict")
	ErrPayloadTooLarge = errors.New("filestore: payload too large")
	ErrThrottled       = errors.New("filestore: throttled")
	ErrServerError     = errors.New("filestore: server error")
)

// maxErrorBody caps how much of a failed response body is kept in APIError.
const maxErrorBody = 1024

// APIError is a non-2xx response. It wraps a status sentinel so callers can
// match with errors.Is and still read the status code and body snippet.
type APIError struct {
	StatusCode int
	RequestID  string
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("filestore: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Body)
	}

	return fmt.Sprintf("filestore: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError is a network-level failure (DNS, connect, timeout, reset).
// It is never retried by this package.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("filestore: %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap exposes both the transport sentinel and the underlying cause, so
// errors.Is works for ErrTransport as well as context.DeadlineExceeded.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// newAPIError builds an APIError from a status code and raw body, truncating
// the body to keep error messages readable.
func newAPIError(status int, requestID string, body []byte) *APIError {
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody] + "..."
	}

	return &APIError{
		StatusCode: status,
		RequestID:  requestID,
		Body:       snippet,
		Err:        classifyStatus(status),
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes and unclassified statuses.
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
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isSuccess reports whether code is in the 2xx range.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
