package tangguh

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// Config is the declarative description of one client. Zero values fall
// back to the defaults applied by ApplyDefaults; the reliability layers are
// enabled by providing their config blocks.
type Config struct {
	// Name identifies the client in logs, metrics and the registry.
	Name string `yaml:"name" mapstructure:"name"`

	// BaseURL is prepended to relative request paths.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Headers are default headers merged into every request. Per-request
	// headers win on conflict.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Timeout bounds each network attempt. Default 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries after the first attempt. Default 3.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// RetryDelay seeds the exponential backoff schedule. Default 500ms.
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`

	// MaxBackoff caps the computed backoff delay. Default 30s.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`

	// FailFastTransport treats transport-level failures as fatal instead of
	// retryable, for callers fronted by their own retry layer.
	FailFastTransport bool `yaml:"fail_fast_transport" mapstructure:"fail_fast_transport"`

	// Auth selects the authentication strategy, nil for none.
	Auth *AuthConfig `yaml:"auth" mapstructure:"auth"`

	// RateLimit enables client-side admission control when non-nil.
	RateLimit *RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Cache enables the response cache when non-nil.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`

	// CircuitBreaker enables the circuit breaker when non-nil.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`

	// Transport overrides the underlying HTTP client. Not loadable from
	// config files.
	Transport *http.Client `yaml:"-" mapstructure:"-"`
}

// RateLimitConfig bounds request admission per key.
type RateLimitConfig struct {
	// Limit is the number of requests admitted per Window.
	Limit int `yaml:"limit" mapstructure:"limit"`

	// Window is the measurement interval. Default 1s.
	Window time.Duration `yaml:"window" mapstructure:"window"`

	// Strategy selects the algorithm: fixed, sliding or token_bucket
	// (default).
	Strategy RateLimitStrategy `yaml:"strategy" mapstructure:"strategy"`
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	// MaxSize is the entry capacity. Default 1000.
	MaxSize int `yaml:"max_size" mapstructure:"max_size"`

	// TTL is the default entry lifetime. Default 5m.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`

	// Policy selects the eviction policy: lru (default), lfu or fifo.
	Policy EvictionPolicy `yaml:"policy" mapstructure:"policy"`

	// Methods widens cacheability beyond GET, e.g. []string{"GET", "POST"}.
	Methods []string `yaml:"methods" mapstructure:"methods"`

	// HashBody includes a digest of the request body in the cache key, for
	// caching bodied requests such as search POSTs.
	HashBody bool `yaml:"hash_body" mapstructure:"hash_body"`
}

// CircuitBreakerConfig tunes the breaker state machine.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// circuit. Default 5.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before admitting a
	// trial call. Default 60s.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" mapstructure:"recovery_timeout"`
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}

	if c.RateLimit != nil {
		if c.RateLimit.Window <= 0 {
			c.RateLimit.Window = time.Second
		}
		if c.RateLimit.Strategy == "" {
			c.RateLimit.Strategy = TokenBucket
		}
	}
	if c.Cache != nil {
		if c.Cache.MaxSize <= 0 {
			c.Cache.MaxSize = 1000
		}
		if c.Cache.TTL <= 0 {
			c.Cache.TTL = 5 * time.Minute
		}
		if c.Cache.Policy == "" {
			c.Cache.Policy = LRU
		}
	}
	if c.CircuitBreaker != nil {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			c.CircuitBreaker.FailureThreshold = 5
		}
		if c.CircuitBreaker.RecoveryTimeout <= 0 {
			c.CircuitBreaker.RecoveryTimeout = 60 * time.Second
		}
	}
}

// Validate collects every configuration problem as a human-readable string.
// An empty slice means the config is usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.RateLimit != nil {
		if c.RateLimit.Limit <= 0 {
			problems = append(problems, "rate_limit: limit must be positive")
		}
		switch c.RateLimit.Strategy {
		case "", FixedWindow, SlidingWindow, TokenBucket:
		default:
			problems = append(problems, fmt.Sprintf("rate_limit: unknown strategy %q", c.RateLimit.Strategy))
		}
	}
	if c.Cache != nil {
		switch c.Cache.Policy {
		case "", LRU, LFU, FIFO:
		default:
			problems = append(problems, fmt.Sprintf("cache: unknown eviction policy %q", c.Cache.Policy))
		}
	}
	if c.CircuitBreaker != nil {
		if c.CircuitBreaker.FailureThreshold < 0 {
			problems = append(problems, "circuit_breaker: failure threshold must not be negative")
		}
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max_retries must not be negative")
	}

	problems = append(problems, c.Auth.validate()...)
	return problems
}

// RegistryConfig is the file format for provisioning a Registry: one Config
// per client name.
type RegistryConfig struct {
	Clients map[string]Config `yaml:"clients" mapstructure:"clients"`
}

// LoadRegistryConfig reads a registry configuration file (YAML, JSON or
// anything else viper understands by extension).
func LoadRegistryConfig(path string) (*RegistryConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("tangguh: reading registry config: %w", err)
	}

	var cfg RegistryConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("tangguh: decoding registry config: %w", err)
	}

	for name, client := range cfg.Clients {
		if client.Name == "" {
			client.Name = name
			cfg.Clients[name] = client
		}
	}
	return &cfg, nil
}
