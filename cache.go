package tangguh

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// EvictionPolicy selects which entry is dropped when the cache is full.
type EvictionPolicy string

const (
	// LRU evicts the least recently accessed entry.
	LRU EvictionPolicy = "lru"
	// LFU evicts the entry with the lowest hit count.
	LFU EvictionPolicy = "lfu"
	// FIFO evicts the earliest created entry.
	FIFO EvictionPolicy = "fifo"
)

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Size        int
	MaxSize     int
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	HitRatio    float64
}

// ResponseCache stores successful responses keyed by request fingerprint.
// It is bounded by maxSize and evicts one entry per overflowing insert
// according to the configured policy. Expired entries are removed lazily on
// read. Safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	maxSize int
	policy  EvictionPolicy

	// access-order chain, most recent at head; used for LRU eviction
	head, tail *cacheEntry

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	now func() time.Time
}

type cacheEntry struct {
	key       string
	resp      *Response
	expiresAt time.Time
	hits      int64
	createdAt time.Time

	prev, next *cacheEntry
}

// NewResponseCache creates a cache holding at most maxSize entries evicted
// under policy.
func NewResponseCache(maxSize int, policy EvictionPolicy) *ResponseCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if policy == "" {
		policy = LRU
	}
	return &ResponseCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		policy:  policy,
		now:     time.Now,
	}
}

// Get returns the cached response for key, or nil if absent or expired.
// An expired entry is deleted on the spot.
func (c *ResponseCache) Get(key string) *Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if c.now().After(entry.expiresAt) {
		c.remove(entry)
		c.expirations++
		c.misses++
		return nil
	}

	entry.hits++
	c.touch(entry)
	c.hits++
	return entry.resp
}

// Set stores resp under key with the given TTL, evicting one entry per
// policy if inserting an unseen key into a full cache.
func (c *ResponseCache) Set(key string, resp *Response, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.entries[key]; ok {
		existing.resp = resp
		existing.expiresAt = now.Add(ttl)
		c.touch(existing)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOne()
	}

	entry := &cacheEntry{
		key:       key,
		resp:      resp,
		expiresAt: now.Add(ttl),
		createdAt: now,
	}
	c.entries[key] = entry
	c.pushFront(entry)
}

// Delete removes the entry for key, if present.
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.remove(entry)
	}
}

// Clear drops every entry without resetting counters.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.head = nil
	c.tail = nil
}

// Len reports the current number of live entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	ratio := float64(0)
	if c.hits+c.misses > 0 {
		ratio = float64(c.hits) / float64(c.hits+c.misses)
	}
	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRatio:    ratio,
	}
}

// evictOne removes a single entry according to the eviction policy.
// Caller holds the lock.
func (c *ResponseCache) evictOne() {
	var victim *cacheEntry
	switch c.policy {
	case LFU:
		for _, entry := range c.entries {
			if victim == nil || entry.hits < victim.hits {
				victim = entry
			}
		}
	case FIFO:
		for _, entry := range c.entries {
			if victim == nil || entry.createdAt.Before(victim.createdAt) {
				victim = entry
			}
		}
	default: // LRU: tail of the access-order chain
		victim = c.tail
	}
	if victim != nil {
		c.remove(victim)
		c.evictions++
	}
}

// chain maintenance; caller holds the lock

func (c *ResponseCache) pushFront(entry *cacheEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *ResponseCache) unlink(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

func (c *ResponseCache) touch(entry *cacheEntry) {
	c.unlink(entry)
	c.pushFront(entry)
}

func (c *ResponseCache) remove(entry *cacheEntry) {
	delete(c.entries, entry.key)
	c.unlink(entry)
}

// Fingerprint derives the default cache key: an FNV-64a hash over method,
// path and sorted query parameters, plus a SHA-256 digest of the serialized
// body when hashBody is set. Unreadable bodies (plain io.Reader) are skipped
// rather than consumed.
func Fingerprint(req *Request, hashBody bool) string {
	h := fnv.New64a()
	h.Write([]byte(req.Method))
	h.Write([]byte{'|'})
	h.Write([]byte(req.Path))

	if len(req.Query) > 0 {
		keys := make([]string, 0, len(req.Query))
		for k := range req.Query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{'|'})
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(req.Query[k]))
		}
	}

	if hashBody && req.Body != nil {
		// Serializing a reader here would drain it before the executor
		// sends it, so readers never contribute to the key.
		if _, isReader := req.Body.(io.Reader); !isReader {
			if body, _, err := serializeBody(req.Body); err == nil && body != nil {
				sum := sha256.Sum256(body)
				h.Write([]byte{'|'})
				h.Write(sum[:])
			}
		}
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DefaultCacheCondition caches side-effect-free requests only.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == http.MethodGet
}

// cloneCached produces the response handed to the caller on a cache hit.
// The stored entry is never returned directly so callers cannot mutate it.
func cloneCached(resp *Response, req *Request, start, end time.Time) *Response {
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers.Clone(),
		Body:       resp.Body,
		Request:    req,
		Start:      start,
		End:        end,
		Duration:   end.Sub(start),
		Cached:     true,
	}
}
