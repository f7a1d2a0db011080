package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv
const (
	EnvProvider     = "CORPUSD_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string // Ollama endpoint; ignored by other providers
	Model     string
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. CORPUSD_EMBEDDING_PROVIDER (openai, ollama, local)
// 2. Check for OPENAI_API_KEY, then OLLAMA_HOST
// 3. Default to local if nothing is configured
func NewFromEnv() (Embedder, error) {
	provider := os.Getenv(EnvProvider)
	openaiKey := os.Getenv(EnvOpenAIAPIKey)
	ollamaHost := os.Getenv(EnvOllamaHost)

	cache := NewCache(defaultCacheSize)

	// Explicit provider selection
	if provider != "" {
		provider = strings.ToLower(provider)
		switch provider {
		case ProviderOpenAI:
			return NewOpenAIProvider(openaiKey, cache)
		case ProviderOllama:
			return NewOllamaProvider(ollamaHost, cache)
		case ProviderLocal:
			return NewLocalProvider(cache)
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
		}
	}

	// Auto-detect based on available configuration
	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, cache)
	}
	if ollamaHost != "" {
		return NewOllamaProvider(ollamaHost, cache)
	}

	// Fallback to local provider
	return NewLocalProvider(cache)
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOpenAI:
		emb, err := NewOpenAIProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Model != "" {
			emb.model = cfg.Model
		}
		return emb, nil
	case ProviderOllama:
		emb, err := NewOllamaProvider(cfg.BaseURL, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Model != "" {
			emb.model = cfg.Model
		}
		return emb, nil
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvOllamaHost) != "" {
		return ProviderOllama
	}

	return ProviderLocal
}
