package tangguh

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes the request lifecycle and reliability layers as
// Prometheus metrics, plus an in-process rolling snapshot for callers that
// want numbers without scraping. Safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimitDenied    *prometheus.CounterVec
	rateLimitRemaining *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	tokenFetches *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer

	rolling *rollingStats
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, so tests and multi-client programs can isolate metric sets.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"client", "method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tangguh_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"client", "method", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"client", "method"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"client", "method", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"client"},
		),
		rateLimitDenied: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_rate_limit_denied_total",
				Help: "Total number of requests denied by the rate limiter",
			},
			[]string{"client", "method"},
		),
		rateLimitRemaining: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_rate_limit_remaining",
				Help: "Remaining rate limit capacity after the last admission",
			},
			[]string{"client"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"client", "method"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"client", "method"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_cache_size",
				Help: "Current number of entries in the response cache",
			},
			[]string{"client"},
		),
		tokenFetches: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_token_fetches_total",
				Help: "Total number of OAuth2 token endpoint calls",
			},
			[]string{"client", "outcome"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_errors_total",
				Help: "Total number of errors by taxonomy type",
			},
			[]string{"client", "type", "method"},
		),
		registry: registry,
		rolling:  newRollingStats(1024),
	}
}

// RecordRequest records one completed request.
func (mc *MetricsCollector) RecordRequest(client, method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(client, method, strconv.Itoa(statusCode), endpoint).Inc()
	mc.requestDuration.WithLabelValues(client, method, endpoint).Observe(duration.Seconds())
	mc.rolling.record(statusCode, duration)
}

// RecordFailure records a request that ended in an error instead of a
// response. statusCode is zero for non-HTTP failures, recorded under the
// "error" status label.
func (mc *MetricsCollector) RecordFailure(client, method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	mc.requestsTotal.WithLabelValues(client, method, code, endpoint).Inc()
	mc.requestDuration.WithLabelValues(client, method, endpoint).Observe(duration.Seconds())
	mc.rolling.record(statusCode, duration)
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(client, method string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(client, method).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(client, method string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(client, method).Dec()
}

// RecordRetry counts one retry attempt.
func (mc *MetricsCollector) RecordRetry(client, method string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(client, method, strconv.Itoa(attempt)).Inc()
	mc.rolling.recordRetry()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(client string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(client).Set(float64(state))
}

// RecordRateLimitDenied counts one rate limiter denial.
func (mc *MetricsCollector) RecordRateLimitDenied(client, method string) {
	if mc == nil {
		return
	}
	mc.rateLimitDenied.WithLabelValues(client, method).Inc()
	mc.rolling.recordRateLimited()
}

// RecordRateLimitRemaining sets the remaining-capacity gauge.
func (mc *MetricsCollector) RecordRateLimitRemaining(client string, remaining int) {
	if mc == nil {
		return
	}
	mc.rateLimitRemaining.WithLabelValues(client).Set(float64(remaining))
}

// RecordCacheHit counts one cache hit.
func (mc *MetricsCollector) RecordCacheHit(client, method string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(client, method).Inc()
	mc.rolling.recordCacheHit()
}

// RecordCacheMiss counts one cache miss.
func (mc *MetricsCollector) RecordCacheMiss(client, method string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(client, method).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(client string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(client).Set(float64(size))
}

// RecordTokenFetch counts one token endpoint call; outcome is "success" or
// "error".
func (mc *MetricsCollector) RecordTokenFetch(client, outcome string) {
	if mc == nil {
		return
	}
	mc.tokenFetches.WithLabelValues(client, outcome).Inc()
}

// RecordError counts one error by taxonomy type.
func (mc *MetricsCollector) RecordError(client, errorType, method string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(client, errorType, method).Inc()
}

// Snapshot returns the rolling in-process view.
func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	if mc == nil {
		return MetricsSnapshot{}
	}
	return mc.rolling.snapshot()
}

// MetricsSnapshot is a point-in-time aggregate over the most recent
// requests, independent of Prometheus scraping.
type MetricsSnapshot struct {
	Requests    int64
	Successes   int64
	Failures    int64
	Retries     int64
	CacheHits   int64
	RateLimited int64

	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// rollingStats keeps a bounded ring of recent request durations and a few
// counters for the Snapshot view.
type rollingStats struct {
	mu        sync.Mutex
	durations []time.Duration
	next      int
	filled    bool

	requests    int64
	successes   int64
	failures    int64
	retries     int64
	cacheHits   int64
	rateLimited int64
}

func newRollingStats(size int) *rollingStats {
	if size <= 0 {
		size = 1024
	}
	return &rollingStats{durations: make([]time.Duration, size)}
}

func (rs *rollingStats) record(statusCode int, duration time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.requests++
	if statusCode >= 200 && statusCode < 400 {
		rs.successes++
	} else {
		rs.failures++
	}
	rs.durations[rs.next] = duration
	rs.next++
	if rs.next == len(rs.durations) {
		rs.next = 0
		rs.filled = true
	}
}

func (rs *rollingStats) recordRetry() {
	rs.mu.Lock()
	rs.retries++
	rs.mu.Unlock()
}

func (rs *rollingStats) recordCacheHit() {
	rs.mu.Lock()
	rs.cacheHits++
	rs.mu.Unlock()
}

func (rs *rollingStats) recordRateLimited() {
	rs.mu.Lock()
	rs.rateLimited++
	rs.mu.Unlock()
}

func (rs *rollingStats) snapshot() MetricsSnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	n := rs.next
	if rs.filled {
		n = len(rs.durations)
	}
	sorted := make([]time.Duration, n)
	copy(sorted, rs.durations[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return MetricsSnapshot{
		Requests:    rs.requests,
		Successes:   rs.successes,
		Failures:    rs.failures,
		Retries:     rs.retries,
		CacheHits:   rs.cacheHits,
		RateLimited: rs.rateLimited,
		P50:         percentile(sorted, 0.50),
		P95:         percentile(sorted, 0.95),
		P99:         percentile(sorted, 0.99),
	}
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
