package tangguh

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newTestCache(maxSize int, policy EvictionPolicy) (*ResponseCache, *time.Time) {
	c := NewResponseCache(maxSize, policy)
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func testResponse(status int) *Response {
	return &Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"ok":true}`),
	}
}

func TestCacheSetGet(t *testing.T) {
	c, _ := newTestCache(10, LRU)

	c.Set("k", testResponse(200), time.Minute)

	got := c.Get("k")
	if got == nil {
		t.Fatal("Expected cached response")
	}
	if got.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", got.StatusCode)
	}
	if c.Get("missing") != nil {
		t.Error("Expected nil for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c, now := newTestCache(10, LRU)

	c.Set("k", testResponse(200), time.Minute)
	*now = now.Add(61 * time.Second)

	if c.Get("k") != nil {
		t.Error("Expected expired entry to be gone")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry removed, len=%d", c.Len())
	}

	stats := c.Stats()
	if stats.Expirations != 1 {
		t.Errorf("Expected 1 expiration, got %d", stats.Expirations)
	}
}

func TestCacheZeroTTLNotStored(t *testing.T) {
	c, _ := newTestCache(10, LRU)

	c.Set("k", testResponse(200), 0)
	if c.Len() != 0 {
		t.Error("Expected zero-TTL entry not to be stored")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c, _ := newTestCache(2, LRU)

	c.Set("a", testResponse(200), time.Minute)
	c.Set("b", testResponse(200), time.Minute)

	// Touch a so b becomes least recently used.
	c.Get("a")
	c.Set("c", testResponse(200), time.Minute)

	if c.Get("b") != nil {
		t.Error("Expected b evicted as least recently used")
	}
	if c.Get("a") == nil || c.Get("c") == nil {
		t.Error("Expected a and c retained")
	}
}

func TestCacheLFUEviction(t *testing.T) {
	c, _ := newTestCache(2, LFU)

	c.Set("hot", testResponse(200), time.Minute)
	c.Set("cold", testResponse(200), time.Minute)
	c.Get("hot")
	c.Get("hot")

	c.Set("new", testResponse(200), time.Minute)

	if c.Get("cold") != nil {
		t.Error("Expected cold evicted as least frequently used")
	}
	if c.Get("hot") == nil {
		t.Error("Expected hot retained")
	}
}

func TestCacheFIFOEviction(t *testing.T) {
	c, now := newTestCache(2, FIFO)

	c.Set("first", testResponse(200), time.Minute)
	*now = now.Add(time.Millisecond)
	c.Set("second", testResponse(200), time.Minute)
	*now = now.Add(time.Millisecond)

	// Access order must not matter for FIFO.
	c.Get("first")
	c.Set("third", testResponse(200), time.Minute)

	if c.Get("first") != nil {
		t.Error("Expected first evicted as earliest created")
	}
	if c.Get("second") == nil || c.Get("third") == nil {
		t.Error("Expected second and third retained")
	}
}

func TestCacheUpdateExistingKeyNoEviction(t *testing.T) {
	c, _ := newTestCache(2, LRU)

	c.Set("a", testResponse(200), time.Minute)
	c.Set("b", testResponse(200), time.Minute)
	c.Set("a", testResponse(201), time.Minute)

	if c.Len() != 2 {
		t.Errorf("Expected len=2 after updating existing key, got %d", c.Len())
	}
	if got := c.Get("a"); got == nil || got.StatusCode != 201 {
		t.Error("Expected updated response for a")
	}
	if c.Stats().Evictions != 0 {
		t.Error("Expected no evictions when updating an existing key")
	}
}

func TestCacheStats(t *testing.T) {
	c, _ := newTestCache(10, LRU)

	c.Set("k", testResponse(200), time.Minute)
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	want := 2.0 / 3.0
	if stats.HitRatio < want-0.001 || stats.HitRatio > want+0.001 {
		t.Errorf("Expected hit ratio ~%.3f, got %.3f", want, stats.HitRatio)
	}
}

func TestCacheClearAndDelete(t *testing.T) {
	c, _ := newTestCache(10, LRU)

	c.Set("a", testResponse(200), time.Minute)
	c.Set("b", testResponse(200), time.Minute)

	c.Delete("a")
	if c.Get("a") != nil {
		t.Error("Expected a deleted")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after Clear, len=%d", c.Len())
	}
}

func TestFingerprintStable(t *testing.T) {
	req := &Request{
		Method: http.MethodGet,
		Path:   "/users",
		Query:  map[string]string{"page": "1", "limit": "10"},
	}
	same := &Request{
		Method: http.MethodGet,
		Path:   "/users",
		Query:  map[string]string{"limit": "10", "page": "1"},
	}

	if Fingerprint(req, false) != Fingerprint(same, false) {
		t.Error("Expected identical fingerprints regardless of query map order")
	}
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := &Request{Method: http.MethodGet, Path: "/users"}

	variants := []*Request{
		{Method: http.MethodPost, Path: "/users"},
		{Method: http.MethodGet, Path: "/orgs"},
		{Method: http.MethodGet, Path: "/users", Query: map[string]string{"page": "2"}},
	}
	for i, v := range variants {
		if Fingerprint(base, false) == Fingerprint(v, false) {
			t.Errorf("Variant %d collided with the base fingerprint", i)
		}
	}
}

func TestFingerprintHashBody(t *testing.T) {
	a := &Request{Method: http.MethodPost, Path: "/search", Body: map[string]string{"q": "go"}}
	b := &Request{Method: http.MethodPost, Path: "/search", Body: map[string]string{"q": "rust"}}

	if Fingerprint(a, true) == Fingerprint(b, true) {
		t.Error("Expected different bodies to produce different fingerprints")
	}
	if Fingerprint(a, false) != Fingerprint(b, false) {
		t.Error("Expected bodies ignored when hashBody is off")
	}
}

func TestFingerprintDoesNotConsumeReaderBody(t *testing.T) {
	reader := strings.NewReader("payload")
	req := &Request{Method: http.MethodPost, Path: "/search", Body: reader}
	bare := &Request{Method: http.MethodPost, Path: "/search"}

	if Fingerprint(req, true) != Fingerprint(bare, true) {
		t.Error("Expected reader bodies excluded from the fingerprint")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("Expected body left intact for the transport, got %q", data)
	}
}

func TestDefaultCacheCondition(t *testing.T) {
	if !DefaultCacheCondition(&Request{Method: http.MethodGet}) {
		t.Error("Expected GET cacheable by default")
	}
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		if DefaultCacheCondition(&Request{Method: m}) {
			t.Errorf("Expected %s not cacheable by default", m)
		}
	}
}

func TestCloneCachedMarksResponse(t *testing.T) {
	orig := testResponse(200)
	req := &Request{Method: http.MethodGet, Path: "/x"}
	start := time.Now()
	end := start.Add(time.Millisecond)

	clone := cloneCached(orig, req, start, end)
	if !clone.Cached {
		t.Error("Expected clone marked Cached")
	}
	if clone.Request != req {
		t.Error("Expected clone to carry the hitting request")
	}

	// Mutating the clone's headers must not leak into the stored entry.
	clone.Headers.Set("X-Mutated", "yes")
	if orig.Headers.Get("X-Mutated") != "" {
		t.Error("Expected stored headers untouched by clone mutation")
	}
}
