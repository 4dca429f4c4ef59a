package tangguh

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Request describes one outbound call. Method and Path are required; Path is
// resolved against the client's base URL unless it is already absolute.
// Body accepts io.Reader, []byte, string, or any JSON-encodable value.
// A Request must not be mutated after it has been dispatched.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    any

	// Per-call overrides. Zero values fall back to the client configuration.
	Timeout    time.Duration
	MaxRetries *int
	CacheTTL   time.Duration
	CacheMode  CacheMode

	// Metadata is opaque caller data carried through interceptors.
	Metadata map[string]any
}

// CacheMode overrides the client's cache predicate for a single request.
type CacheMode int

const (
	// CacheDefault defers to the client's cache condition.
	CacheDefault CacheMode = iota
	// CacheEnabled forces cache participation for this request.
	CacheEnabled
	// CacheDisabled bypasses the cache for this request.
	CacheDisabled
)

// Response is the result of a completed request. It is not mutated by the
// client after being returned.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Request    *Request

	Start    time.Time
	End      time.Time
	Duration time.Duration

	// Cached reports whether this response was served from the response cache.
	Cached bool
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Decode unmarshals the response body into a value of type T.
func Decode[T any](r *Response) (T, error) {
	var v T
	err := json.Unmarshal(r.Body, &v)
	return v, err
}

// RequestInterceptor transforms a request before dispatch. Returning an error
// aborts the call.
type RequestInterceptor interface {
	InterceptRequest(ctx context.Context, req *Request) (*Request, error)
}

// RequestInterceptorFunc adapts a function to RequestInterceptor.
type RequestInterceptorFunc func(ctx context.Context, req *Request) (*Request, error)

func (f RequestInterceptorFunc) InterceptRequest(ctx context.Context, req *Request) (*Request, error) {
	return f(ctx, req)
}

// ResponseInterceptor transforms a successful response before it is cached
// and returned.
type ResponseInterceptor interface {
	InterceptResponse(ctx context.Context, resp *Response) (*Response, error)
}

// ResponseInterceptorFunc adapts a function to ResponseInterceptor.
type ResponseInterceptorFunc func(ctx context.Context, resp *Response) (*Response, error)

func (f ResponseInterceptorFunc) InterceptResponse(ctx context.Context, resp *Response) (*Response, error) {
	return f(ctx, resp)
}

// ErrorInterceptor observes a failed call. It may return a synthetic
// response to absorb the error (fallback), replace the error, or pass it
// through by returning (nil, err).
type ErrorInterceptor interface {
	InterceptError(ctx context.Context, req *Request, err error) (*Response, error)
}

// ErrorInterceptorFunc adapts a function to ErrorInterceptor.
type ErrorInterceptorFunc func(ctx context.Context, req *Request, err error) (*Response, error)

func (f ErrorInterceptorFunc) InterceptError(ctx context.Context, req *Request, err error) (*Response, error) {
	return f(ctx, req, err)
}

// CacheKeyFunc derives the cache fingerprint for a request.
type CacheKeyFunc func(req *Request) string

// CacheCondition decides whether a request participates in caching.
type CacheCondition func(req *Request) bool

// EventType labels a client lifecycle event.
type EventType string

const (
	EventSuccess     EventType = "success"
	EventError       EventType = "error"
	EventCached      EventType = "cached"
	EventRetry       EventType = "retry"
	EventRateLimited EventType = "rate_limited"
	EventCircuitOpen EventType = "circuit_open"
)

// Event is emitted to the OnEvent hook at request lifecycle points.
type Event struct {
	Type       EventType
	Client     string
	Method     string
	Endpoint   string
	StatusCode int
	Err        error
	Duration   time.Duration
	Timestamp  time.Time
}

// Option configures a Client beyond what Config covers: pluggable
// collaborators such as loggers, metrics registries and interceptors.
type Option func(*Client)
