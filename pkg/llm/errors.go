package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChoices is returned when the API returns an empty choice list.
	ErrNoChoices = errors.New("llm: no choices returned")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("llm: stream closed")

	// ErrMalformedThinking means a thinking call returned output that is
	// not the expected JSON shape. Hard failure for that stage only.
	ErrMalformedThinking = errors.New("llm: malformed thinking output")
)

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true for HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true for HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// wrapErr adds package context to an error.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("llm: %s: %w", op, err)
}
