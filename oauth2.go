package tangguh

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ardiansyahnr/tangguh/internal/singleflight"
)

// tokenExpirySkew refreshes tokens slightly before their reported expiry so
// in-flight requests never carry a token that dies mid-call.
const tokenExpirySkew = 30 * time.Second

// OAuth2Config holds the immutable credential configuration for one
// provider. ClientID, ClientSecret and TokenURL drive the
// client_credentials grant; a RefreshToken switches to the refresh_token
// grant.
type OAuth2Config struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	Scope        string `yaml:"scope" mapstructure:"scope"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
}

// Token is a bearer token as issued by the token endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`

	ExpiresAt time.Time `json:"-"`
}

// valid reports whether the token is usable at instant now.
func (t *Token) valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(tokenExpirySkew).Before(t.ExpiresAt)
}

// OAuth2TokenManager fetches and caches bearer tokens per credential,
// refreshing them transparently before expiry. Concurrent requests for the
// same credential are coalesced into a single token-endpoint call. Fetch
// failures are fatal: the manager never retries them itself. Safe for
// concurrent use and shareable between clients.
type OAuth2TokenManager struct {
	httpClient *http.Client

	mu     sync.RWMutex
	tokens map[string]*Token

	metrics      *MetricsCollector
	metricsLabel string

	group *singleflight.Group
	now   func() time.Time
}

// NewOAuth2TokenManager creates a token manager using httpClient for token
// endpoint calls. A nil httpClient falls back to a 30s-timeout default.
func NewOAuth2TokenManager(httpClient *http.Client) *OAuth2TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuth2TokenManager{
		httpClient: httpClient,
		tokens:     make(map[string]*Token),
		group:      singleflight.New(),
		now:        time.Now,
	}
}

// InstrumentWith reports every token-endpoint call to mc labeled with name.
// A shared manager keeps one observer; the last call wins.
func (m *OAuth2TokenManager) InstrumentWith(mc *MetricsCollector, name string) {
	m.mu.Lock()
	m.metrics = mc
	m.metricsLabel = name
	m.mu.Unlock()
}

func (m *OAuth2TokenManager) recordFetch(outcome string) {
	m.mu.RLock()
	mc, label := m.metrics, m.metricsLabel
	m.mu.RUnlock()
	mc.RecordTokenFetch(label, outcome)
}

// AccessToken returns a valid bearer token for cfg, fetching or refreshing
// one from the token endpoint when the cached token is missing or expired.
func (m *OAuth2TokenManager) AccessToken(ctx context.Context, cfg *OAuth2Config) (string, error) {
	key := credentialKey(cfg)

	m.mu.RLock()
	tok := m.tokens[key]
	m.mu.RUnlock()

	if tok.valid(m.now()) {
		return tok.AccessToken, nil
	}

	val, err := m.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have refreshed.
		m.mu.RLock()
		cached := m.tokens[key]
		m.mu.RUnlock()
		if cached.valid(m.now()) {
			return cached, nil
		}

		fresh, fetchErr := m.fetch(ctx, cfg, cached)
		if fetchErr != nil {
			m.recordFetch("error")
			return nil, fetchErr
		}
		m.recordFetch("success")

		m.mu.Lock()
		m.tokens[key] = fresh
		m.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return val.(*Token).AccessToken, nil
}

// SetToken seeds the cache for cfg, e.g. with a token obtained elsewhere.
func (m *OAuth2TokenManager) SetToken(cfg *OAuth2Config, token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[credentialKey(cfg)] = &Token{
		AccessToken:  token,
		RefreshToken: cfg.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// Invalidate drops the cached token for cfg, forcing a fetch on next use.
func (m *OAuth2TokenManager) Invalidate(cfg *OAuth2Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, credentialKey(cfg))
}

// fetch POSTs to the token endpoint with the appropriate grant. A refresh
// token, either rotated from a previous response or configured, selects the
// refresh_token grant; otherwise client_credentials is used.
func (m *OAuth2TokenManager) fetch(ctx context.Context, cfg *OAuth2Config, prev *Token) (*Token, error) {
	if cfg.TokenURL == "" {
		return nil, newTokenFetchError("token URL not configured", nil)
	}

	form := url.Values{}
	refreshToken := cfg.RefreshToken
	if prev != nil && prev.RefreshToken != "" {
		refreshToken = prev.RefreshToken
	}
	if refreshToken != "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
	} else {
		form.Set("grant_type", "client_credentials")
		if cfg.Scope != "" {
			form.Set("scope", cfg.Scope)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, newTokenFetchError("building token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cfg.ClientID != "" {
		req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, newTokenFetchError("token endpoint unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newTokenFetchError("reading token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("token endpoint returned %d", resp.StatusCode)
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			msg = fmt.Sprintf("%s: %s: %s", msg, oauthErr.Error, oauthErr.Description)
		}
		ce := newTokenFetchError(msg, nil)
		ce.StatusCode = resp.StatusCode
		ce.Body = body
		return nil, ce
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, newTokenFetchError("decoding token response", err)
	}
	if token.AccessToken == "" {
		return nil, newTokenFetchError("token response missing access_token", nil)
	}
	if token.ExpiresIn > 0 {
		token.ExpiresAt = m.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	// The endpoint may rotate the refresh token; keep the previous one when
	// it does not.
	if token.RefreshToken == "" && refreshToken != "" {
		token.RefreshToken = refreshToken
	}
	return &token, nil
}

// credentialKey identifies one credential: hash of client id, token URL and
// scope.
func credentialKey(cfg *OAuth2Config) string {
	h := fnv.New64a()
	h.Write([]byte(cfg.ClientID))
	h.Write([]byte{'|'})
	h.Write([]byte(cfg.TokenURL))
	h.Write([]byte{'|'})
	h.Write([]byte(cfg.Scope))
	return fmt.Sprintf("%x", h.Sum64())
}

func newTokenFetchError(message string, cause error) *ClientError {
	return &ClientError{
		Type:      ErrorTypeTokenFetch,
		Message:   message,
		Retryable: false,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
