package embedder

import (
	"context"
	"crypto/sha256"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalProvider produces deterministic feature-hashed vectors without any network calls.
// Texts sharing words or character trigrams land close together, which is enough for
// offline development and tests but carries no semantic understanding.
type LocalProvider struct {
	base
}

// NewLocalProvider creates a local hashing embedder
func NewLocalProvider(cfg Config, cache *Cache) (*LocalProvider, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = LocalDimension
	}
	return &LocalProvider{
		base: base{
			provider:  ProviderLocal,
			model:     LocalModel,
			dimension: cfg.Dimension,
			cache:     cache,
			retry:     RetryConfig{MaxAttempts: 1},
		},
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return l.embedOne(ctx, req, l.embed)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return l.embedBatch(ctx, req, l.embed)
}

func (l *LocalProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = hashVector(text, l.dimension)
	}
	return vectors, nil
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashVector accumulates signed feature hashes of lowercased words and their
// character trigrams. Text without any word falls back to its SHA-256 bytes.
func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '.' && r != '-'
	})

	if len(words) == 0 {
		sum := sha256.Sum256([]byte(text))
		for i := range vec {
			vec[i] = float32(sum[i%len(sum)])/255.0 - 0.5
		}
		return vec
	}

	for _, w := range words {
		addFeature(vec, "w:"+w, 1.0)
		runes := []rune(w)
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}
	return vec
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
