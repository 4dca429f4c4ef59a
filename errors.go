package tangguh

import (
	"errors"
	"fmt"
	"time"
)

// Error type discriminators carried in ClientError.Type.
const (
	ErrorTypeValidation  = "Validation"
	ErrorTypeRateLimit   = "RateLimit"
	ErrorTypeTimeout     = "Timeout"
	ErrorTypeHTTP        = "HTTP"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeTransport   = "Transport"
	ErrorTypeTokenFetch  = "TokenFetch"
)

// Sentinel errors for common failure scenarios, matchable with errors.Is.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("tangguh: circuit open")

	// ErrRateLimited is returned when a request is denied by the rate limiter.
	ErrRateLimited = errors.New("tangguh: rate limited")

	// ErrTokenFetch is returned when an OAuth2 token endpoint request fails.
	ErrTokenFetch = errors.New("tangguh: token fetch failed")

	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("tangguh: invalid request")

	// ErrClientExists is returned when registering a duplicate client name.
	ErrClientExists = errors.New("tangguh: client already registered")

	// ErrClientNotFound is returned when looking up an unknown client name.
	ErrClientNotFound = errors.New("tangguh: client not found")
)

// ClientError is the structured error produced by the client. Type selects
// the taxonomy entry; Retryable tells the caller (and the executor's retry
// loop) whether the operation may be attempted again.
type ClientError struct {
	Type      string
	Message   string
	Retryable bool

	// StatusCode is the HTTP status for HTTP-classified errors, 0 otherwise.
	StatusCode int
	// ResetAt is when the rate limit window reopens (rate limit errors only).
	ResetAt time.Time
	// Body is the raw error response body, if one was read.
	Body []byte
	// Response is the originating response for HTTP-classified errors.
	Response *Response

	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration

	Cause error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches either another ClientError of the same Type or the sentinel
// error corresponding to this error's taxonomy entry.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if other, ok := target.(*ClientError); ok {
		return e.Type == other.Type
	}
	switch target {
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ErrTokenFetch:
		return e.Type == ErrorTypeTokenFetch
	case ErrInvalidRequest:
		return e.Type == ErrorTypeValidation
	}
	return false
}

// IsRetryable reports whether err represents a failure that may succeed on a
// later attempt. Rate limit denials, timeouts, transport failures and
// retryable HTTP statuses qualify; validation, circuit-open and token fetch
// failures do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// retryableStatus classifies an HTTP status per the retry policy: server
// errors, 429, 408 and 409 are worth retrying, other client errors are not.
func retryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	switch status {
	case 408, 409, 429:
		return true
	}
	return false
}

// DebugInfo renders a multi-line diagnostic dump of the error.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	info += fmt.Sprintf("Retryable: %t\n", e.Retryable)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.ResetAt.IsZero() {
		info += fmt.Sprintf("Reset At: %s\n", e.ResetAt.Format(time.RFC3339))
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
