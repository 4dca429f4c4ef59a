package tangguh

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// WithLogger sets the diagnostic logger. Log output still requires debug
// logging to be enabled, see WithDebug.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging through the standard library
// logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
		if c.debug == nil {
			c.debug = defaultDebugConfig()
		}
	}
}

// WithZerolog enables debug logging through a zerolog logger.
func WithZerolog(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = NewZerologLogger(l)
		if c.debug == nil {
			c.debug = defaultDebugConfig()
		}
	}
}

// WithDebug enables debug logging at every lifecycle point.
func WithDebug() Option {
	return func(c *Client) {
		c.debug = defaultDebugConfig()
	}
}

// WithDebugConfig enables debug logging with fine-grained control over
// which lifecycle points log.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) {
		c.debug = cfg
	}
}

// WithRequestIDGenerator overrides the per-request correlation ID source.
func WithRequestIDGenerator(fn func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = defaultDebugConfig()
		}
		c.debug.RequestIDGen = fn
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables Prometheus metrics on a caller-owned
// registerer.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithMetricsCollector shares a prebuilt collector, e.g. between registry
// clients.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithCacheKeyFunc overrides the request fingerprint function.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFn = fn
	}
}

// WithCacheCondition overrides the cache participation predicate.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithTransport overrides the underlying HTTP client.
func WithTransport(transport *http.Client) Option {
	return func(c *Client) {
		c.cfg.Transport = transport
	}
}

// WithRequestInterceptor appends a request interceptor.
func WithRequestInterceptor(in RequestInterceptor) Option {
	return func(c *Client) {
		c.reqInterceptors = append(c.reqInterceptors, in)
	}
}

// WithResponseInterceptor appends a response interceptor.
func WithResponseInterceptor(in ResponseInterceptor) Option {
	return func(c *Client) {
		c.respInterceptors = append(c.respInterceptors, in)
	}
}

// WithErrorInterceptor appends an error interceptor.
func WithErrorInterceptor(in ErrorInterceptor) Option {
	return func(c *Client) {
		c.errInterceptors = append(c.errInterceptors, in)
	}
}

// WithOnEvent registers the lifecycle event hook. The hook runs on the
// request goroutine and must not block.
func WithOnEvent(fn func(Event)) Option {
	return func(c *Client) {
		c.onEvent = fn
	}
}

// WithBackoffStrategy overrides the inter-retry delay algorithm.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = s
	}
}

// WithBackoffJitter sets the jitter factor (0 to 1) applied to backoff
// delays.
func WithBackoffJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.backoffJitter = f
	}
}

// WithTokenManager shares a token manager between clients so one
// credential refreshes once, not per client.
func WithTokenManager(tm *OAuth2TokenManager) Option {
	return func(c *Client) {
		c.tokens = tm
	}
}
