package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Storage.DBPath == "" {
		add("storage.db_path", "db_path is required")
	}
	if c.Storage.UploadDir == "" {
		add("storage.upload_dir", "upload_dir is required")
	}

	if c.Chunking.Size <= 0 {
		add("chunking.size", "size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap", "overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}

	if c.Upload.MaxFileSize <= 0 {
		add("upload.max_file_size", "max_file_size must be positive")
	}

	if c.RAG.TopK < 1 || c.RAG.TopK > 20 {
		add("rag.top_k", "top_k must be between 1 and 20, got %d", c.RAG.TopK)
	}
	if c.RAG.Temperature < 0 || c.RAG.Temperature > 2 {
		add("rag.temperature", "temperature must be between 0 and 2, got %g", c.RAG.Temperature)
	}
	if c.RAG.MaxContextLength <= 0 {
		add("rag.max_context_length", "max_context_length must be positive")
	}
	if lang := strings.ToLower(c.RAG.PromptLanguage); lang != "ko" && lang != "en" {
		add("rag.prompt_language", "prompt_language must be ko or en, got %q", c.RAG.PromptLanguage)
	}

	if c.Ollama.Host == "" {
		add("ollama.host", "host is required")
	}
	if c.Ollama.Model == "" {
		add("ollama.model", "model is required")
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "openai", "local":
	default:
		add("embedding.provider", "provider must be ollama, openai or local, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		add("embedding.dimension", "dimension must not be negative")
	}
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 100 {
		add("embedding.batch_size", "batch_size must be between 1 and 100, got %d", c.Embedding.BatchSize)
	}

	switch c.Search.Mode {
	case "hybrid", "vector", "keyword":
	default:
		add("search.mode", "mode must be hybrid, vector or keyword, got %q", c.Search.Mode)
	}
	switch c.Search.Fusion {
	case "weighted", "rrf":
	default:
		add("search.fusion", "fusion must be weighted or rrf, got %q", c.Search.Fusion)
	}
	if c.Search.VectorWeight < 0 || c.Search.KeywordWeight < 0 || c.Search.VectorWeight+c.Search.KeywordWeight == 0 {
		add("search.vector_weight", "weights must be non-negative and not both zero")
	}

	if c.VectorIndex.IVFThreshold < 0 {
		add("vector_index.ivf_threshold", "ivf_threshold must not be negative")
	}
	if c.VectorIndex.NProbe < 0 {
		add("vector_index.nprobe", "nprobe must not be negative")
	}

	if c.Workers.PoolSize < 1 {
		add("workers.pool_size", "pool_size must be at least 1, got %d", c.Workers.PoolSize)
	}

	return errs
}

// ValidateAll combines Validate's errors into one
func (c *Config) ValidateAll() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
