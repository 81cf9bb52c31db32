package embedder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider implements Embedder against a local Ollama server through langchaingo
type OllamaProvider struct {
	base
	embedder embeddings.Embedder
}

// NewOllamaProvider creates an Ollama embedder. Empty fields in cfg take the Ollama defaults.
func NewOllamaProvider(cfg Config, cache *Cache) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = OllamaDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(MaxBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
	}

	return &OllamaProvider{
		base: base{
			provider:  ProviderOllama,
			model:     cfg.Model,
			dimension: cfg.Dimension,
			cache:     cache,
			retry:     cfg.retryConfig(),
		},
		embedder: emb,
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return o.embedOne(ctx, req, o.embed)
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return o.embedBatch(ctx, req, o.embed)
}

func (o *OllamaProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return vectors, nil
}

func (o *OllamaProvider) Close() error {
	return nil
}
