package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string        // ollama, openai or local
	Model     string        // Provider model name; empty selects the provider default
	BaseURL   string        // Server or API base URL
	APIKey    string        // Bearer token for OpenAI-compatible endpoints
	Dimension int           // Expected vector dimension; 0 selects the provider default
	CacheSize int           // LRU entries; negative disables caching
	Timeout   time.Duration // Per-request HTTP timeout

	// Retry overrides DefaultRetryConfig when non-nil
	Retry *RetryConfig
}

func (c Config) retryConfig() RetryConfig {
	if c.Retry != nil {
		return *c.Retry
	}
	return DefaultRetryConfig()
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize >= 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOllama
	}

	switch provider {
	case ProviderOllama:
		return NewOllamaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
