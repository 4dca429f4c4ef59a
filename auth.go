package tangguh

import (
	"context"
	"fmt"
	"net/http"
)

// AuthType identifies the authentication strategy.
type AuthType string

const (
	// AuthNone disables authentication.
	AuthNone AuthType = "none"
	// AuthBearer sends a static bearer token.
	AuthBearer AuthType = "bearer"
	// AuthBasic uses HTTP Basic authentication.
	AuthBasic AuthType = "basic"
	// AuthAPIKey sends an API key via header or query parameter.
	AuthAPIKey AuthType = "api_key"
	// AuthOAuth2 fetches bearer tokens through the OAuth2 token manager.
	AuthOAuth2 AuthType = "oauth2"
	// AuthCustom applies a caller-supplied request mutator.
	AuthCustom AuthType = "custom"
)

// AuthConfig configures request authentication. Exactly one strategy is
// active, selected by Type.
type AuthConfig struct {
	Type AuthType `yaml:"type" mapstructure:"type"`

	// Token is the static bearer token (AuthBearer).
	Token string `yaml:"token" mapstructure:"token"`

	// Username and Password are the basic auth credentials (AuthBasic).
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`

	// Key is the API key value (AuthAPIKey). In selects its placement,
	// "header" (default) or "query"; Name is the header or parameter name,
	// defaulting to "X-API-Key".
	Key  string `yaml:"key" mapstructure:"key"`
	In   string `yaml:"in" mapstructure:"in"`
	Name string `yaml:"name" mapstructure:"name"`

	// OAuth2 holds the credential configuration (AuthOAuth2).
	OAuth2 *OAuth2Config `yaml:"oauth2" mapstructure:"oauth2"`

	// Apply is the custom request mutator (AuthCustom).
	Apply func(req *http.Request) error `yaml:"-" mapstructure:"-"`
}

// BearerAuth creates a static bearer token auth config.
func BearerAuth(token string) *AuthConfig {
	return &AuthConfig{Type: AuthBearer, Token: token}
}

// BasicAuth creates a basic auth config.
func BasicAuth(username, password string) *AuthConfig {
	return &AuthConfig{Type: AuthBasic, Username: username, Password: password}
}

// APIKeyAuth creates an API key auth config sent via the X-API-Key header.
func APIKeyAuth(key string) *AuthConfig {
	return &AuthConfig{Type: AuthAPIKey, Key: key, In: "header", Name: "X-API-Key"}
}

// APIKeyAuthHeader creates an API key auth config with a custom header name.
func APIKeyAuthHeader(key, headerName string) *AuthConfig {
	return &AuthConfig{Type: AuthAPIKey, Key: key, In: "header", Name: headerName}
}

// APIKeyAuthQuery creates an API key auth config sent via query parameter.
func APIKeyAuthQuery(key, paramName string) *AuthConfig {
	return &AuthConfig{Type: AuthAPIKey, Key: key, In: "query", Name: paramName}
}

// OAuth2Auth creates an OAuth2 client-credentials auth config.
func OAuth2Auth(cfg *OAuth2Config) *AuthConfig {
	return &AuthConfig{Type: AuthOAuth2, OAuth2: cfg}
}

// CustomAuth creates an auth config applying fn to each outgoing request.
func CustomAuth(fn func(req *http.Request) error) *AuthConfig {
	return &AuthConfig{Type: AuthCustom, Apply: fn}
}

// apply mutates req according to the configured strategy. OAuth2 resolves a
// token through tokens, which must be non-nil for that type.
func (a *AuthConfig) apply(ctx context.Context, req *http.Request, tokens *OAuth2TokenManager) error {
	if a == nil || a.Type == "" || a.Type == AuthNone {
		return nil
	}

	switch a.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case AuthBasic:
		req.SetBasicAuth(a.Username, a.Password)
	case AuthAPIKey:
		name := a.Name
		if name == "" {
			name = "X-API-Key"
		}
		if a.In == "query" {
			q := req.URL.Query()
			q.Set(name, a.Key)
			req.URL.RawQuery = q.Encode()
		} else {
			req.Header.Set(name, a.Key)
		}
	case AuthOAuth2:
		if a.OAuth2 == nil {
			return newTokenFetchError("oauth2 auth selected without credentials", nil)
		}
		if tokens == nil {
			return newTokenFetchError("oauth2 auth selected without token manager", nil)
		}
		token, err := tokens.AccessToken(ctx, a.OAuth2)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case AuthCustom:
		if a.Apply != nil {
			return a.Apply(req)
		}
	default:
		return fmt.Errorf("tangguh: unknown auth type %q", a.Type)
	}
	return nil
}

// validate reports configuration problems as human-readable strings.
func (a *AuthConfig) validate() []string {
	if a == nil {
		return nil
	}
	var problems []string
	switch a.Type {
	case "", AuthNone:
	case AuthBearer:
		if a.Token == "" {
			problems = append(problems, "auth: bearer token must not be empty")
		}
	case AuthBasic:
		if a.Username == "" {
			problems = append(problems, "auth: basic username must not be empty")
		}
	case AuthAPIKey:
		if a.Key == "" {
			problems = append(problems, "auth: API key must not be empty")
		}
		if a.In != "" && a.In != "header" && a.In != "query" {
			problems = append(problems, fmt.Sprintf("auth: invalid API key placement %q", a.In))
		}
	case AuthOAuth2:
		if a.OAuth2 == nil {
			problems = append(problems, "auth: oauth2 credentials missing")
		} else if a.OAuth2.TokenURL == "" {
			problems = append(problems, "auth: oauth2 token URL must not be empty")
		}
	case AuthCustom:
		if a.Apply == nil {
			problems = append(problems, "auth: custom auth function must not be nil")
		}
	default:
		problems = append(problems, fmt.Sprintf("auth: unknown auth type %q", a.Type))
	}
	return problems
}
