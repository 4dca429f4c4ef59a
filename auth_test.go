package tangguh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func applyAuth(t *testing.T, auth *AuthConfig, tokens *OAuth2TokenManager) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/x?keep=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := auth.apply(context.Background(), req, tokens); err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	return req
}

func TestAuthNoneLeavesRequestUntouched(t *testing.T) {
	for _, auth := range []*AuthConfig{nil, {Type: AuthNone}, {}} {
		req := applyAuth(t, auth, nil)
		if req.Header.Get("Authorization") != "" {
			t.Error("Expected no Authorization header")
		}
	}
}

func TestAuthBearer(t *testing.T) {
	req := applyAuth(t, BearerAuth("tok-123"), nil)
	if got := req.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("Expected bearer header, got %q", got)
	}
}

func TestAuthBasic(t *testing.T) {
	req := applyAuth(t, BasicAuth("user", "pass"), nil)
	user, pass, ok := req.BasicAuth()
	if !ok || user != "user" || pass != "pass" {
		t.Errorf("Expected basic auth user/pass, got %q/%q ok=%v", user, pass, ok)
	}
}

func TestAuthAPIKeyHeader(t *testing.T) {
	req := applyAuth(t, APIKeyAuth("key-1"), nil)
	if got := req.Header.Get("X-API-Key"); got != "key-1" {
		t.Errorf("Expected default header name, got %q", got)
	}

	req = applyAuth(t, APIKeyAuthHeader("key-2", "X-Custom"), nil)
	if got := req.Header.Get("X-Custom"); got != "key-2" {
		t.Errorf("Expected custom header name, got %q", got)
	}
}

func TestAuthAPIKeyQuery(t *testing.T) {
	req := applyAuth(t, APIKeyAuthQuery("key-3", "api_key"), nil)
	q := req.URL.Query()
	if got := q.Get("api_key"); got != "key-3" {
		t.Errorf("Expected query param, got %q", got)
	}
	if got := q.Get("keep"); got != "1" {
		t.Error("Expected existing query params preserved")
	}
}

func TestAuthCustom(t *testing.T) {
	auth := CustomAuth(func(req *http.Request) error {
		req.Header.Set("X-Signature", "signed")
		return nil
	})
	req := applyAuth(t, auth, nil)
	if got := req.Header.Get("X-Signature"); got != "signed" {
		t.Errorf("Expected custom mutation applied, got %q", got)
	}
}

func TestAuthOAuth2AppliesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "oauth-tok",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	tokens := NewOAuth2TokenManager(nil)
	auth := OAuth2Auth(&OAuth2Config{ClientID: "c", ClientSecret: "s", TokenURL: server.URL})

	req := applyAuth(t, auth, tokens)
	if got := req.Header.Get("Authorization"); got != "Bearer oauth-tok" {
		t.Errorf("Expected OAuth2 bearer header, got %q", got)
	}
}

func TestAuthOAuth2RequiresManager(t *testing.T) {
	auth := OAuth2Auth(&OAuth2Config{ClientID: "c", TokenURL: "https://auth/token"})
	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/x", nil)

	err := auth.apply(context.Background(), req, nil)
	if err == nil {
		t.Fatal("Expected error without token manager")
	}
}

func TestAuthUnknownType(t *testing.T) {
	auth := &AuthConfig{Type: "voodoo"}
	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/x", nil)

	if err := auth.apply(context.Background(), req, nil); err == nil {
		t.Fatal("Expected error for unknown auth type")
	}
}
