package tangguh

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitStrategy selects the admission algorithm.
type RateLimitStrategy string

const (
	// FixedWindow keeps a counter per window-aligned interval. Cheap, but
	// permits bursts across window boundaries.
	FixedWindow RateLimitStrategy = "fixed"
	// SlidingWindow tracks admission timestamps over the trailing window.
	SlidingWindow RateLimitStrategy = "sliding"
	// TokenBucket refills continuously and allows bursts up to the limit.
	TokenBucket RateLimitStrategy = "token_bucket"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter admits or denies requests per logical key. Check is an atomic
// check-and-admit; state for keys unseen for two windows is pruned by a
// background janitor. Safe for concurrent use.
type RateLimiter struct {
	strategy RateLimitStrategy
	limit    int
	window   time.Duration

	mu    sync.Mutex
	state map[string]*limiterState

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

type limiterState struct {
	// fixed window
	count       int
	windowStart time.Time

	// sliding window
	stamps []time.Time

	// token bucket
	tokens     float64
	lastRefill time.Time

	lastSeen time.Time
}

// NewRateLimiter creates a limiter admitting cfg.Limit requests per
// cfg.Window under the configured strategy and starts its cleanup janitor.
// Call Close to stop the janitor.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Strategy == "" {
		cfg.Strategy = TokenBucket
	}

	rl := &RateLimiter{
		strategy: cfg.Strategy,
		limit:    cfg.Limit,
		window:   cfg.Window,
		state:    make(map[string]*limiterState),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Check atomically decides whether one request under key is admitted now.
func (rl *RateLimiter) Check(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.check(key, true)
}

// Inspect reports the current decision for key without consuming capacity.
func (rl *RateLimiter) Inspect(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.check(key, false)
}

// Close stops the background janitor. The limiter remains usable.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) check(key string, consume bool) Decision {
	now := rl.now()
	st, ok := rl.state[key]
	if !ok {
		st = &limiterState{
			windowStart: now.Truncate(rl.window),
			tokens:      float64(rl.limit),
			lastRefill:  now,
		}
		rl.state[key] = st
	}
	st.lastSeen = now

	switch rl.strategy {
	case FixedWindow:
		return rl.checkFixed(st, now, consume)
	case SlidingWindow:
		return rl.checkSliding(st, now, consume)
	default:
		return rl.checkTokenBucket(st, now, consume)
	}
}

func (rl *RateLimiter) checkFixed(st *limiterState, now time.Time, consume bool) Decision {
	start := now.Truncate(rl.window)
	if start.After(st.windowStart) {
		st.windowStart = start
		st.count = 0
	}
	resetAt := st.windowStart.Add(rl.window)

	if st.count >= rl.limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	if consume {
		st.count++
	}
	return Decision{Allowed: true, Remaining: rl.limit - st.count, ResetAt: resetAt}
}

func (rl *RateLimiter) checkSliding(st *limiterState, now time.Time, consume bool) Decision {
	cutoff := now.Add(-rl.window)
	kept := st.stamps[:0]
	for _, ts := range st.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.stamps = kept

	if len(st.stamps) >= rl.limit {
		// Capacity frees when the oldest admission ages out.
		return Decision{Allowed: false, Remaining: 0, ResetAt: st.stamps[0].Add(rl.window)}
	}
	if consume {
		st.stamps = append(st.stamps, now)
	}
	resetAt := now.Add(rl.window)
	if len(st.stamps) > 0 {
		resetAt = st.stamps[0].Add(rl.window)
	}
	return Decision{Allowed: true, Remaining: rl.limit - len(st.stamps), ResetAt: resetAt}
}

func (rl *RateLimiter) checkTokenBucket(st *limiterState, now time.Time, consume bool) Decision {
	refillPerSec := float64(rl.limit) / rl.window.Seconds()
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed > 0 {
		st.tokens += elapsed * refillPerSec
		if st.tokens > float64(rl.limit) {
			st.tokens = float64(rl.limit)
		}
		st.lastRefill = now
	}

	if st.tokens < 1 {
		wait := (1 - st.tokens) / refillPerSec
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   now.Add(time.Duration(wait * float64(time.Second))),
		}
	}
	if consume {
		st.tokens--
	}
	return Decision{Allowed: true, Remaining: int(st.tokens), ResetAt: now}
}

// janitor prunes state for keys idle longer than two windows.
func (rl *RateLimiter) janitor() {
	interval := rl.window
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-2 * rl.window)
	rl.mu.Lock()
	for key, st := range rl.state {
		if st.lastSeen.Before(cutoff) {
			delete(rl.state, key)
		}
	}
	rl.mu.Unlock()
}

// size reports the number of tracked keys, for tests and metrics.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.state)
}

// newRateLimitError builds the retryable denial error carrying the reset time.
func newRateLimitError(key string, d Decision) *ClientError {
	return &ClientError{
		Type:      ErrorTypeRateLimit,
		Message:   fmt.Sprintf("rate limit exceeded for %q", key),
		Retryable: true,
		ResetAt:   d.ResetAt,
		Timestamp: time.Now(),
	}
}
