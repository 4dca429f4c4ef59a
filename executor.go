package tangguh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ardiansyahnr/tangguh/internal/backoff"
)

// BackoffStrategy selects the inter-retry delay algorithm.
type BackoffStrategy int

const (
	// ExponentialJitter doubles the delay per attempt with optional uniform
	// jitter. The default.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter uses the AWS decorrelated jitter variant.
	DecorrelatedJitter
)

func (s BackoffStrategy) calculator() backoff.Strategy {
	if s == DecorrelatedJitter {
		return backoff.DecorrelatedJitter{}
	}
	return backoff.Exponential{}
}

// Executor performs the network call for one request: URL resolution,
// header merging, auth application, body serialization, deadline
// enforcement and bounded retry with exponential backoff. It owns no
// cross-call state beyond its transport and token manager, so one instance
// serves any number of concurrent calls.
type Executor struct {
	transport *http.Client
	tokens    *OAuth2TokenManager
	auth      *AuthConfig

	baseURL string
	headers map[string]string
	timeout time.Duration

	maxRetries int
	retryDelay time.Duration
	maxBackoff time.Duration
	multiplier float64
	jitter     float64
	strategy   backoff.Strategy

	failFastTransport bool

	logger Logger
	debug  *DebugConfig

	// onRetry is invoked before each retry sleep; the client hooks metrics
	// and events here.
	onRetry func(method string, attempt int, delay time.Duration)
}

// NewExecutor builds an executor from cfg. The token manager may be nil
// when no OAuth2 auth is configured.
func NewExecutor(cfg Config, tokens *OAuth2TokenManager) *Executor {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Client{}
	}
	return &Executor{
		transport:         transport,
		tokens:            tokens,
		auth:              cfg.Auth,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		headers:           cfg.Headers,
		timeout:           cfg.Timeout,
		maxRetries:        cfg.MaxRetries,
		retryDelay:        cfg.RetryDelay,
		maxBackoff:        cfg.MaxBackoff,
		multiplier:        2.0,
		jitter:            0,
		strategy:          backoff.Exponential{},
		failFastTransport: cfg.FailFastTransport,
	}
}

// Execute runs req to completion: at most maxRetries+1 attempts, retrying
// only errors classified retryable, waiting retryDelay·2^attempt between
// attempts (or the server's Retry-After when longer than zero). The last
// classified error is returned on exhaustion. No attempt outlives ctx.
func (e *Executor) Execute(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	urlStr, err := e.buildURL(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := serializeBody(req.Body)
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request body could not be serialized",
			Retryable: false,
			Cause:     err,
			Method:    req.Method,
			URL:       urlStr,
			Timestamp: start,
		}
	}

	attempts := e.maxRetries + 1
	if req.MaxRetries != nil {
		attempts = *req.MaxRetries + 1
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *ClientError
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := e.delayFor(attempt-1, lastErr)
			if e.onRetry != nil {
				e.onRetry(req.Method, attempt, delay)
			}
			if e.debug.enabled() && e.debug.LogRetries && e.logger != nil {
				e.logger.Info("Scheduling retry", "method", req.Method, "url", urlStr,
					"attempt", attempt, "maxAttempts", attempts, "backoff", delay)
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, e.transportError(req, urlStr, err, attempt, start)
			}
		}

		resp, attemptErr := e.attempt(ctx, req, urlStr, body, contentType, start)
		if attemptErr == nil {
			return resp, nil
		}

		lastErr = attemptErr
		lastErr.Attempt = attempt
		lastErr.MaxRetries = attempts - 1
		if !lastErr.Retryable {
			return nil, lastErr
		}
		// The caller going away ends the retry budget regardless of class.
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// attempt issues one network call under its own deadline.
func (e *Executor) attempt(ctx context.Context, req *Request, urlStr string, body []byte, contentType string, start time.Time) (*Response, *ClientError) {
	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, urlStr, reader)
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "building HTTP request",
			Retryable: false,
			Cause:     err,
			Method:    req.Method,
			URL:       urlStr,
			Timestamp: time.Now(),
		}
	}

	// Client defaults first, then per-request headers override.
	for k, v := range e.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if err := e.auth.apply(ctx, httpReq, e.tokens); err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, &ClientError{
			Type:      ErrorTypeTransport,
			Message:   "applying authentication",
			Retryable: false,
			Cause:     err,
			Method:    req.Method,
			URL:       urlStr,
			Timestamp: time.Now(),
		}
	}

	httpResp, err := e.transport.Do(httpReq)
	if err != nil {
		if isTimeout(err, attemptCtx, ctx) {
			return nil, &ClientError{
				Type:      ErrorTypeTimeout,
				Message:   "request timed out",
				Retryable: true,
				Cause:     err,
				Method:    req.Method,
				URL:       urlStr,
				Timestamp: time.Now(),
			}
		}
		return nil, e.transportError(req, urlStr, err, 0, start)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, e.transportError(req, urlStr, fmt.Errorf("reading response body: %w", err), 0, start)
	}

	end := time.Now()
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
		Request:    req,
		Start:      start,
		End:        end,
		Duration:   end.Sub(start),
	}

	if httpResp.StatusCode >= 400 {
		return nil, &ClientError{
			Type:       ErrorTypeHTTP,
			Message:    fmt.Sprintf("HTTP %d %s", httpResp.StatusCode, http.StatusText(httpResp.StatusCode)),
			Retryable:  retryableStatus(httpResp.StatusCode),
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Response:   resp,
			Method:     req.Method,
			URL:        urlStr,
			Timestamp:  end,
			Duration:   end.Sub(start),
		}
	}

	return resp, nil
}

// delayFor computes the wait before the next attempt, honoring Retry-After
// on 429/503 responses when present.
func (e *Executor) delayFor(attempt int, lastErr *ClientError) time.Duration {
	if lastErr != nil && lastErr.Response != nil {
		switch lastErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			if d := parseRetryAfter(lastErr.Response.Headers.Get("Retry-After")); d > 0 {
				return d
			}
		}
	}
	return e.strategy.Calculate(attempt, e.retryDelay, e.maxBackoff, e.multiplier, e.jitter)
}

func (e *Executor) transportError(req *Request, urlStr string, err error, attempt int, start time.Time) *ClientError {
	retryable := !e.failFastTransport
	if errors.Is(err, context.Canceled) {
		retryable = false
	}
	return &ClientError{
		Type:      ErrorTypeTransport,
		Message:   "transport request failed",
		Retryable: retryable,
		Cause:     err,
		Method:    req.Method,
		URL:       urlStr,
		Attempt:   attempt,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}

// buildURL resolves req.Path against the base URL and encodes query
// parameters on top of any already present.
func (e *Executor) buildURL(req *Request) (string, error) {
	raw := req.Path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if e.baseURL == "" {
			return "", &ClientError{
				Type:      ErrorTypeValidation,
				Message:   fmt.Sprintf("relative path %q with no base URL", req.Path),
				Retryable: false,
				Method:    req.Method,
				Timestamp: time.Now(),
			}
		}
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		raw = e.baseURL + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &ClientError{
			Type:      ErrorTypeValidation,
			Message:   fmt.Sprintf("invalid URL %q", raw),
			Retryable: false,
			Cause:     err,
			Method:    req.Method,
			Timestamp: time.Now(),
		}
	}

	if len(req.Query) > 0 {
		q := u.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// serializeBody converts a request body into bytes. io.Reader, []byte and
// string pass through; anything else is JSON-encoded and tagged with an
// application/json content type.
func serializeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		return data, "", err
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form, capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}
	return 0
}

// isTimeout distinguishes deadline expiry from other transport failures.
// A parent context cancellation is not a timeout.
func isTimeout(err error, attemptCtx, parent context.Context) bool {
	if parent.Err() == context.Canceled {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
