// Package tangguh provides a resilient HTTP client layer for consuming
// third-party APIs:
//
//   - Retries with exponential backoff + jitter and Retry-After support
//   - Rate limiting (fixed window, sliding window or token bucket)
//   - Bounded in-memory response caching (LRU / LFU / FIFO eviction)
//   - Circuit breaker (closed / open / half-open states)
//   - OAuth2 client-credentials and refresh-token flows with a shared,
//     coalescing token cache
//   - Request / response / error interceptor chains
//   - Prometheus metrics and lightweight structured debug logging
//
// Clients are built from a declarative Config plus functional options for
// pluggable collaborators:
//
//	client, err := tangguh.New(tangguh.Config{
//	    Name:    "github",
//	    BaseURL: "https://api.github.com",
//	    RateLimit: &tangguh.RateLimitConfig{Limit: 10, Window: time.Second},
//	    Cache:     &tangguh.CacheConfig{TTL: 5 * time.Minute},
//	    CircuitBreaker: &tangguh.CircuitBreakerConfig{},
//	}, tangguh.WithMetrics())
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Get(ctx, "/repos/golang/go")
//
// A Registry manages many named clients and shares one OAuth2 token
// manager between them; LoadRegistryConfig provisions a whole registry
// from a YAML file.
//
// A single *Client instance is safe for concurrent use. The library avoids
// opinionated logging: provide a Logger (e.g. via WithZerolog) and enable
// debug flags selectively (WithDebug / WithDebugConfig) for insight
// without noise.
package tangguh
