package tangguh

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Client is a resilient HTTP client for one upstream API. Every call flows
// through the same pipeline: validation, request interceptors, response
// cache, rate limiter, circuit breaker, then the retrying executor,
// followed by response or error interceptors. All layers are optional and
// enabled through Config. Safe for concurrent use.
type Client struct {
	name string
	cfg  Config

	executor *Executor
	limiter  *RateLimiter
	cache    *ResponseCache
	breaker  *CircuitBreaker
	tokens   *OAuth2TokenManager

	cacheTTL       time.Duration
	cacheKeyFn     CacheKeyFunc
	cacheCondition CacheCondition
	hashBody       bool

	reqInterceptors  []RequestInterceptor
	respInterceptors []ResponseInterceptor
	errInterceptors  []ErrorInterceptor

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig
	onEvent func(Event)

	// set by options before the executor is assembled
	backoffStrategy BackoffStrategy
	backoffJitter   float64
}

// New creates a client from cfg, applying defaults and then opts. An
// invalid configuration is rejected with a validation error listing every
// problem found.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "invalid configuration: " + strings.Join(problems, "; "),
			Retryable: false,
			Timestamp: time.Now(),
		}
	}

	c := &Client{
		name: cfg.Name,
		cfg:  cfg,
	}

	if cfg.RateLimit != nil {
		c.limiter = NewRateLimiter(*cfg.RateLimit)
	}
	if cfg.Cache != nil {
		c.cache = NewResponseCache(cfg.Cache.MaxSize, cfg.Cache.Policy)
		c.cacheTTL = cfg.Cache.TTL
		c.hashBody = cfg.Cache.HashBody
		c.cacheCondition = cacheConditionFor(cfg.Cache.Methods)
	}
	if cfg.CircuitBreaker != nil {
		c.breaker = NewCircuitBreaker(*cfg.CircuitBreaker)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.Auth != nil && c.cfg.Auth.Type == AuthOAuth2 && c.tokens == nil {
		c.tokens = NewOAuth2TokenManager(c.cfg.Transport)
		c.tokens.InstrumentWith(c.metrics, c.name)
	}

	c.executor = NewExecutor(c.cfg, c.tokens)
	c.executor.logger = c.logger
	c.executor.debug = c.debug
	c.executor.strategy = c.backoffStrategy.calculator()
	if c.backoffJitter > 0 {
		c.executor.jitter = c.backoffJitter
	}
	c.executor.onRetry = func(method string, attempt int, delay time.Duration) {
		c.metrics.RecordRetry(c.name, method, attempt)
		c.emit(Event{Type: EventRetry, Method: method})
	}

	return c, nil
}

// Name returns the client's configured name.
func (c *Client) Name() string {
	return c.name
}

// Get issues a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post issues a POST request for path with body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request for path with body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH request for path with body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete issues a DELETE request for path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Request is an alias for Do.
func (c *Client) Request(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, req)
}

// Do runs req through the full pipeline and returns the response or a
// classified error. Cache hits return without touching the rate limiter or
// circuit breaker; rate limit denials never count as breaker failures.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	requestID := ""
	if c.debug.enabled() {
		requestID = c.debug.requestID()
	}
	if c.debug.enabled() && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Dispatching request",
			"requestId", requestID, "client", c.name, "method", req.Method, "path", req.Path)
	}

	var err error
	for _, in := range c.reqInterceptors {
		var next *Request
		next, err = in.InterceptRequest(ctx, req)
		if err != nil {
			if next != nil {
				req = next
			}
			return c.finishError(ctx, req, err, requestID, start)
		}
		req = next
		if req == nil {
			return nil, &ClientError{
				Type:      ErrorTypeValidation,
				Message:   "request interceptor returned nil request",
				Retryable: false,
				RequestID: requestID,
				Timestamp: time.Now(),
			}
		}
	}

	cacheable := c.cacheable(req)
	cacheKey := ""
	if cacheable {
		cacheKey = c.cacheKey(req)
		if cached := c.cache.Get(cacheKey); cached != nil {
			if c.debug.enabled() && c.debug.LogCacheHits && c.logger != nil {
				c.logger.Debug("Cache hit",
					"requestId", requestID, "client", c.name, "method", req.Method, "path", req.Path)
			}
			c.metrics.RecordCacheHit(c.name, req.Method)
			end := time.Now()
			resp := cloneCached(cached, req, start, end)
			c.emit(Event{
				Type: EventCached, Method: req.Method, Endpoint: req.Path,
				StatusCode: resp.StatusCode, Duration: end.Sub(start),
			})
			return resp, nil
		}
		c.metrics.RecordCacheMiss(c.name, req.Method)
	}

	if c.limiter != nil {
		key := c.name + ":" + req.Method
		d := c.limiter.Check(key)
		if !d.Allowed {
			if c.debug.enabled() && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("Rate limit exceeded",
					"requestId", requestID, "client", c.name, "method", req.Method, "resetAt", d.ResetAt)
			}
			c.metrics.RecordRateLimitDenied(c.name, req.Method)
			c.emit(Event{Type: EventRateLimited, Method: req.Method, Endpoint: req.Path})
			return c.finishError(ctx, req, newRateLimitError(key, d), requestID, start)
		}
		c.metrics.RecordRateLimitRemaining(c.name, d.Remaining)
	}

	c.metrics.RecordRequestStart(c.name, req.Method)
	defer c.metrics.RecordRequestEnd(c.name, req.Method)

	var resp *Response
	execute := func() error {
		var execErr error
		resp, execErr = c.executor.Execute(ctx, req)
		return execErr
	}
	if c.breaker != nil {
		err = c.breaker.Execute(execute)
		c.metrics.RecordCircuitBreakerState(c.name, c.breaker.State())
	} else {
		err = execute()
	}

	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			if c.debug.enabled() && c.debug.LogCircuitBreaker && c.logger != nil {
				c.logger.Warn("Circuit breaker rejected request",
					"requestId", requestID, "client", c.name, "method", req.Method)
			}
			c.emit(Event{Type: EventCircuitOpen, Method: req.Method, Endpoint: req.Path})
		}
		return c.finishError(ctx, req, err, requestID, start)
	}

	for _, in := range c.respInterceptors {
		resp, err = in.InterceptResponse(ctx, resp)
		if err != nil {
			return c.finishError(ctx, req, err, requestID, start)
		}
		if resp == nil {
			return nil, &ClientError{
				Type:      ErrorTypeValidation,
				Message:   "response interceptor returned nil response",
				Retryable: false,
				RequestID: requestID,
				Timestamp: time.Now(),
			}
		}
	}

	if cacheable && resp.IsSuccess() {
		ttl := c.cacheTTL
		if req.CacheTTL > 0 {
			ttl = req.CacheTTL
		}
		c.cache.Set(cacheKey, resp, ttl)
		c.metrics.RecordCacheSize(c.name, c.cache.Len())
	}

	end := time.Now()
	c.metrics.RecordRequest(c.name, req.Method, req.Path, resp.StatusCode, end.Sub(start))
	if c.debug.enabled() && c.debug.LogResponses && c.logger != nil {
		c.logger.Debug("Request completed",
			"requestId", requestID, "client", c.name, "method", req.Method,
			"path", req.Path, "status", resp.StatusCode, "duration", end.Sub(start))
	}
	c.emit(Event{
		Type: EventSuccess, Method: req.Method, Endpoint: req.Path,
		StatusCode: resp.StatusCode, Duration: end.Sub(start),
	})
	return resp, nil
}

// finishError enriches err, offers it to the error interceptors (which may
// absorb it into a synthetic response) and records the failure.
func (c *Client) finishError(ctx context.Context, req *Request, err error, requestID string, start time.Time) (*Response, error) {
	var ce *ClientError
	if errors.As(err, &ce) {
		if ce.RequestID == "" {
			ce.RequestID = requestID
		}
		if ce.Endpoint == "" {
			ce.Endpoint = req.Path
		}
		c.metrics.RecordError(c.name, ce.Type, req.Method)
	} else {
		c.metrics.RecordError(c.name, ErrorTypeTransport, req.Method)
	}

	for _, in := range c.errInterceptors {
		resp, interceptErr := in.InterceptError(ctx, req, err)
		if resp != nil {
			c.metrics.RecordRequest(c.name, req.Method, req.Path, resp.StatusCode, time.Since(start))
			c.emit(Event{
				Type: EventSuccess, Method: req.Method, Endpoint: req.Path,
				StatusCode: resp.StatusCode, Duration: time.Since(start),
			})
			return resp, nil
		}
		if interceptErr != nil {
			err = interceptErr
		}
	}

	status := 0
	if ce != nil {
		status = ce.StatusCode
	}
	c.metrics.RecordFailure(c.name, req.Method, req.Path, status, time.Since(start))

	if c.debug.enabled() && c.debug.LogErrors && c.logger != nil {
		c.logger.Error("Request failed",
			"requestId", requestID, "client", c.name, "method", req.Method,
			"path", req.Path, "error", err)
	}
	c.emit(Event{
		Type: EventError, Method: req.Method, Endpoint: req.Path,
		Err: err, Duration: time.Since(start),
	})
	return nil, err
}

// cacheable applies the per-request cache mode over the client condition.
func (c *Client) cacheable(req *Request) bool {
	if c.cache == nil {
		return false
	}
	switch req.CacheMode {
	case CacheEnabled:
		return true
	case CacheDisabled:
		return false
	}
	if c.cacheCondition != nil {
		return c.cacheCondition(req)
	}
	return DefaultCacheCondition(req)
}

func (c *Client) cacheKey(req *Request) string {
	if c.cacheKeyFn != nil {
		return c.cacheKeyFn(req)
	}
	return Fingerprint(req, c.hashBody)
}

// UseRequestInterceptor appends an interceptor running before dispatch.
// Not safe to call concurrently with in-flight requests.
func (c *Client) UseRequestInterceptor(in RequestInterceptor) {
	c.reqInterceptors = append(c.reqInterceptors, in)
}

// UseResponseInterceptor appends an interceptor running on successful
// responses.
func (c *Client) UseResponseInterceptor(in ResponseInterceptor) {
	c.respInterceptors = append(c.respInterceptors, in)
}

// UseErrorInterceptor appends an interceptor observing failed calls.
func (c *Client) UseErrorInterceptor(in ErrorInterceptor) {
	c.errInterceptors = append(c.errInterceptors, in)
}

// Metrics returns the rolling in-process metrics snapshot. Zero-valued when
// metrics were not enabled.
func (c *Client) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// CacheStats returns response cache counters, zero-valued when the cache is
// disabled.
func (c *Client) CacheStats() CacheStats {
	if c.cache == nil {
		return CacheStats{}
	}
	return c.cache.Stats()
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// InvalidateCached drops the cached response matching req, if any.
func (c *Client) InvalidateCached(req *Request) {
	if c.cache != nil {
		c.cache.Delete(c.cacheKey(req))
	}
}

// BreakerState reports the circuit breaker state, StateClosed when no
// breaker is configured.
func (c *Client) BreakerState() CircuitState {
	if c.breaker == nil {
		return StateClosed
	}
	return c.breaker.State()
}

// Close releases background resources (the rate limiter janitor). The
// client remains usable afterwards.
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Close()
	}
}

// emit delivers an event to the OnEvent hook, filling common fields.
func (c *Client) emit(evt Event) {
	if c.onEvent == nil {
		return
	}
	evt.Client = c.name
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	c.onEvent(evt)
}

// validateRequest rejects structurally unusable requests before any layer
// is consulted.
func validateRequest(req *Request) error {
	if req == nil {
		return &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request must not be nil",
			Retryable: false,
			Timestamp: time.Now(),
		}
	}
	if req.Method == "" {
		return &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request method must not be empty",
			Retryable: false,
			Timestamp: time.Now(),
		}
	}
	if req.Path == "" {
		return &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request path must not be empty",
			Retryable: false,
			Method:    req.Method,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// cacheConditionFor builds the method allow-list condition, nil meaning the
// GET-only default.
func cacheConditionFor(methods []string) CacheCondition {
	if len(methods) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[strings.ToUpper(m)] = true
	}
	return func(req *Request) bool {
		return allowed[strings.ToUpper(req.Method)]
	}
}
