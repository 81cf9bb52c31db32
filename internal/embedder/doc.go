// Package embedder generates vector embeddings for document chunks and questions.
//
// Three providers implement the Embedder interface:
//
//   - ollama: a local Ollama server through langchaingo (default, bge-m3, 1024 dimensions)
//   - openai: any OpenAI-compatible /embeddings endpoint with a configurable base URL
//   - local:  deterministic feature hashing (384 dimensions), for offline use and tests
//
// Every returned vector is L2-normalized, so cosine similarity and dot product agree.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: "ollama",
//	    BaseURL:  "http://localhost:11434",
//	    Model:    "bge-m3",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "DDR5 operating voltage",
//	})
//
// # Batch Processing
//
// GenerateBatch accepts up to MaxBatchSize texts and returns embeddings in input order.
// The indexer sends DefaultBatchSize chunks per call.
//
// # Caching
//
// Embeddings are cached in an LRU keyed by the SHA-256 of the text. Cached vectors
// are deep-copied on read. Only cache misses are sent to the provider.
//
// # Retries
//
// Remote calls are retried up to three times with jittered exponential backoff
// (1s base, 30s cap). Client errors other than 429 and malformed responses are
// returned immediately.
//
// # Error Handling
//
//	_, err := emb.GenerateEmbedding(ctx, req)
//	switch {
//	case errors.Is(err, embedder.ErrEmptyText):
//	    // nothing to embed
//	case errors.Is(err, embedder.ErrProviderUnavailable):
//	    // server down or returned an error status
//	case errors.Is(err, embedder.ErrDimensionMismatch):
//	    // model does not match the configured dimension
//	}
package embedder
