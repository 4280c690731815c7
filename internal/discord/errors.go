package discord

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRetriesExhausted is returned when server errors used up the
	// retry budget.
	ErrRetriesExhausted = errors.New("discord: max retries reached")

	// ErrRateLimitBudgetExceeded is returned when the accumulated 429
	// waiting for one call would pass Config.MaxRateLimitWait.
	ErrRateLimitBudgetExceeded = errors.New("discord: rate limit wait budget exceeded")

	// ErrMissingMessageID is returned when a create or edit succeeds
	// without a message id in the response body.
	ErrMissingMessageID = errors.New("discord: response has no message id")
)

// APIError is a non-2xx response from the Discord API. Discord error
// bodies are JSON with a message, a numeric code and, on 429, the
// number of seconds to wait.
type APIError struct {
	StatusCode int
	Message    string
	Code       int
	RetryAfter float64
	Global     bool

	// Body is the raw response body, kept for logging.
	Body []byte

	hasRetryAfter bool
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("discord: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("discord: HTTP %d: %s (code %d)", err.StatusCode, err.Message, err.Code)
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode >= 500 && apiError.StatusCode <= 599
}

// IsNotFound reports whether err is a 404 response, e.g. an edit of a
// message that was deleted by hand.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}
