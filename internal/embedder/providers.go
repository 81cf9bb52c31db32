package embedder

import (
	"math"
	"time"
)

// Provider names
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Defaults
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "bge-m3"
	OllamaDimension    = 1024

	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "text-embedding-3-small"
	OpenAIDimension    = 1536

	LocalModel     = "feature-hash"
	LocalDimension = 384

	DefaultCacheSize = 10000
	DefaultTimeout   = 60 * time.Second

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxAttempts       = 3
	InitialBackoff    = time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0
	BackoffJitter     = 0.2
)

// NormalizeVector returns a unit-length copy of vector. A zero vector is returned unchanged.
func NormalizeVector(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}

	out := make([]float32, len(vector))
	if sum == 0 {
		copy(out, vector)
		return out
	}

	norm := float32(math.Sqrt(sum))
	for i, v := range vector {
		out[i] = v / norm
	}
	return out
}
