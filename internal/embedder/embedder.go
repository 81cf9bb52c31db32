package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/datasheet-rag/internal/metrics"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrInvalidResponse     = errors.New("invalid embedding response")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// EmbeddingRequest represents a request to generate embeddings
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts, in input order
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a deep copy of an embedding from cache
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(req.Texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(req.Texts), MaxBatchSize)
	}

	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}

// embedFunc embeds texts remotely and returns one vector per text, in order
type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// base holds what every provider shares: identity, cache and retry policy
type base struct {
	provider  string
	model     string
	dimension int
	cache     *Cache
	retry     RetryConfig
}

func (b *base) Dimension() int   { return b.dimension }
func (b *base) Provider() string { return b.provider }
func (b *base) Model() string    { return b.model }

// embedBatch serves texts from the cache and embeds the misses with fn under
// the retry policy. Vectors are L2-normalized before they are cached.
func (b *base) embedBatch(ctx context.Context, req BatchEmbeddingRequest, fn embedFunc) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	result := make([]*Embedding, len(req.Texts))
	hashes := make([]string, len(req.Texts))
	missIdx := make([]int, 0, len(req.Texts))
	missTexts := make([]string, 0, len(req.Texts))

	for i, text := range req.Texts {
		hashes[i] = ComputeHash(text)
		if b.cache != nil {
			if emb, ok := b.cache.Get(hashes[i]); ok {
				metrics.EmbeddingCacheHits.Inc()
				result[i] = emb
				continue
			}
			metrics.EmbeddingCacheMisses.Inc()
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vectors, err := retryWithBackoff(ctx, b.retry, func() ([][]float32, error) {
			vectors, err := fn(ctx, missTexts)
			if err != nil {
				return nil, err
			}
			if len(vectors) != len(missTexts) {
				return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrInvalidResponse, len(vectors), len(missTexts))
			}
			return vectors, nil
		})
		if err != nil {
			return nil, err
		}

		for j, vec := range vectors {
			if len(vec) == 0 {
				return nil, fmt.Errorf("%w: empty vector", ErrInvalidResponse)
			}
			if b.dimension > 0 && len(vec) != b.dimension {
				return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), b.dimension)
			}
			i := missIdx[j]
			emb := &Embedding{
				Vector:    NormalizeVector(vec),
				Dimension: len(vec),
				Provider:  b.provider,
				Model:     b.model,
				Hash:      hashes[i],
			}
			if b.cache != nil {
				b.cache.Set(hashes[i], emb)
				emb, _ = b.cache.Get(hashes[i])
			}
			result[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: result,
		Provider:   b.provider,
		Model:      b.model,
	}, nil
}

// embedOne is GenerateEmbedding in terms of embedBatch
func (b *base) embedOne(ctx context.Context, req EmbeddingRequest, fn embedFunc) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := b.embedBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}}, fn)
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}
