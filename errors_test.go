package tangguh

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClientErrorMessage(t *testing.T) {
	err := &ClientError{
		Type:       ErrorTypeHTTP,
		Message:    "HTTP 502 Bad Gateway",
		StatusCode: 502,
		RequestID:  "req-1",
		Attempt:    2,
		MaxRetries: 3,
	}

	msg := err.Error()
	for _, want := range []string{"HTTP", "502", "req-1", "attempt 2/3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in message, got %q", want, msg)
		}
	}
}

func TestClientErrorNil(t *testing.T) {
	var err *ClientError
	if err.Error() != "<nil>" {
		t.Errorf("Expected <nil>, got %q", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("Expected nil unwrap")
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ClientError{Type: ErrorTypeTransport, Message: "transport failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
}

func TestClientErrorIsSentinels(t *testing.T) {
	cases := []struct {
		errType  string
		sentinel error
	}{
		{ErrorTypeCircuitOpen, ErrCircuitOpen},
		{ErrorTypeRateLimit, ErrRateLimited},
		{ErrorTypeTokenFetch, ErrTokenFetch},
		{ErrorTypeValidation, ErrInvalidRequest},
	}

	for _, tc := range cases {
		err := &ClientError{Type: tc.errType, Message: "x"}
		if !errors.Is(err, tc.sentinel) {
			t.Errorf("Expected %s to match its sentinel", tc.errType)
		}
		for _, other := range cases {
			if other.sentinel == tc.sentinel {
				continue
			}
			if errors.Is(err, other.sentinel) {
				t.Errorf("Expected %s not to match %v", tc.errType, other.sentinel)
			}
		}
	}
}

func TestClientErrorIsSameType(t *testing.T) {
	a := &ClientError{Type: ErrorTypeTimeout, Message: "a"}
	b := &ClientError{Type: ErrorTypeTimeout, Message: "b"}
	c := &ClientError{Type: ErrorTypeHTTP, Message: "c"}

	if !errors.Is(a, b) {
		t.Error("Expected same-type ClientErrors to match")
	}
	if errors.Is(a, c) {
		t.Error("Expected different-type ClientErrors not to match")
	}
}

func TestClientErrorIsThroughWrapping(t *testing.T) {
	inner := &ClientError{Type: ErrorTypeRateLimit, Message: "denied"}
	wrapped := fmt.Errorf("calling upstream: %w", inner)

	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("Expected sentinel match through fmt.Errorf wrapping")
	}

	var ce *ClientError
	if !errors.As(wrapped, &ce) {
		t.Fatal("Expected errors.As to find the ClientError")
	}
	if ce.Type != ErrorTypeRateLimit {
		t.Errorf("Expected RateLimit type, got %q", ce.Type)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("Expected nil not retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("Expected plain errors not retryable")
	}
	if !IsRetryable(&ClientError{Type: ErrorTypeTimeout, Retryable: true}) {
		t.Error("Expected retryable ClientError to report true")
	}
	if IsRetryable(&ClientError{Type: ErrorTypeValidation, Retryable: false}) {
		t.Error("Expected non-retryable ClientError to report false")
	}
}

func TestRetryableStatus(t *testing.T) {
	retryable := []int{500, 502, 503, 504, 599, 408, 409, 429}
	for _, code := range retryable {
		if !retryableStatus(code) {
			t.Errorf("Expected %d retryable", code)
		}
	}

	fatal := []int{400, 401, 403, 404, 410, 422, 200, 301}
	for _, code := range fatal {
		if retryableStatus(code) {
			t.Errorf("Expected %d not retryable", code)
		}
	}
}

func TestDebugInfo(t *testing.T) {
	err := &ClientError{
		Type:       ErrorTypeRateLimit,
		Message:    "rate limit exceeded",
		Retryable:  true,
		RequestID:  "req-7",
		Method:     "GET",
		URL:        "https://api.example.com/users",
		ResetAt:    time.Now().Add(time.Second),
		Attempt:    1,
		MaxRetries: 3,
		Timestamp:  time.Now(),
		Duration:   42 * time.Millisecond,
		Cause:      errors.New("too many requests"),
	}

	info := err.DebugInfo()
	for _, want := range []string{
		"Error Type: RateLimit",
		"Retryable: true",
		"Request ID: req-7",
		"Method: GET",
		"Reset At:",
		"Attempt: 1/3",
		"Cause: too many requests",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in debug info:\n%s", want, info)
		}
	}

	var nilErr *ClientError
	if nilErr.DebugInfo() != "Error: <nil>" {
		t.Errorf("Unexpected nil debug info %q", nilErr.DebugInfo())
	}
}
