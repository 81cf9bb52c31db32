// Package app wires configuration into the storage, embedding, search, indexing
// and answer services shared by the HTTP server, the MCP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/api"
	"github.com/dshills/datasheet-rag/internal/chunker"
	"github.com/dshills/datasheet-rag/internal/config"
	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/llm"
	"github.com/dshills/datasheet-rag/internal/mcp"
	"github.com/dshills/datasheet-rag/internal/parser"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/internal/vectorindex"
)

// App holds the wired services. Indexer and searcher share one embedder, so
// embeddings cached while indexing are reused by queries.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Storage   *storage.SQLiteStorage
	Embedder  embedder.Embedder
	Vectors   *vectorindex.Manager
	Searcher  *searcher.Searcher
	Indexer   *indexer.Indexer
	Generator llm.Generator
	RAG       *rag.Service
}

// Option overrides a component built by New
type Option func(*options)

type options struct {
	generator llm.Generator
	embedder  embedder.Embedder
}

// WithGenerator replaces the Ollama generator
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithEmbedder replaces the configured embedding provider
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// New builds every service from cfg and loads the vector index from storage
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := prepareDirs(cfg.Storage); err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, Storage: store}
	if err := a.build(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("services ready",
		zap.String("db_path", cfg.Storage.DBPath),
		zap.String("storage_driver", storage.DriverName),
		zap.String("embedding_provider", a.Embedder.Provider()),
		zap.String("llm_model", a.Generator.Model()),
		zap.Int("indexed_vectors", a.Vectors.Len()))
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.Config

	a.Embedder = o.embedder
	if a.Embedder == nil {
		emb, err := embedder.New(embedder.Config{
			Provider:  cfg.Embedding.Provider,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
			CacheSize: cfg.Embedding.CacheSize,
			Timeout:   cfg.Embedding.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize embedder: %w", err)
		}
		a.Embedder = emb
	}

	a.Vectors = vectorindex.NewManager(a.Storage, vectorindex.Config{
		IVFThreshold: cfg.VectorIndex.IVFThreshold,
		NProbe:       cfg.VectorIndex.NProbe,
		Iterations:   cfg.VectorIndex.Iterations,
		Seed:         cfg.VectorIndex.Seed,
	}, a.Logger)
	if err := a.Vectors.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to load vector index: %w", err)
	}

	a.Searcher = searcher.NewSearcher(a.Storage, a.Embedder, a.Vectors, searcher.Config{
		Mode:          searcher.SearchMode(cfg.Search.Mode),
		Fusion:        searcher.FusionMethod(cfg.Search.Fusion),
		VectorWeight:  cfg.Search.VectorWeight,
		KeywordWeight: cfg.Search.KeywordWeight,
		RRFConstant:   cfg.Search.RRFConstant,
		CacheTTL:      cfg.Search.CacheTTL,
		CacheSize:     cfg.Search.CacheSize,
	}, a.Logger)

	chunks, err := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithChunkOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		return err
	}

	a.Indexer, err = indexer.New(indexer.Deps{
		Storage:     a.Storage,
		Embedder:    a.Embedder,
		Parser:      parser.New(a.Logger),
		Chunker:     chunks,
		Vectors:     a.Vectors,
		Invalidator: a.Searcher,
		Logger:      a.Logger,
	}, indexer.Config{
		UploadDir:         cfg.Storage.UploadDir,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		BatchSize:         cfg.Embedding.BatchSize,
		PoolSize:          cfg.Workers.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize indexer: %w", err)
	}

	a.Generator = o.generator
	if a.Generator == nil {
		gen, err := llm.NewOllama(llm.Config{
			Host:       cfg.Ollama.Host,
			Model:      cfg.Ollama.Model,
			Timeout:    cfg.Ollama.Timeout,
			NumPredict: cfg.Ollama.NumPredict,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Generator = gen
	}

	a.RAG = rag.NewService(a.Searcher, a.Storage, a.Generator, rag.Config{
		TopK:              cfg.RAG.TopK,
		Temperature:       cfg.RAG.Temperature,
		MaxTokens:         cfg.Ollama.NumPredict,
		MaxContextLength:  cfg.RAG.MaxContextLength,
		PromptLanguage:    cfg.RAG.PromptLanguage,
		RetrievalTimeout:  cfg.RAG.RetrievalTimeout,
		GenerationTimeout: cfg.RAG.GenerationTimeout,
	}, a.Logger, rag.WithEmbedder(a.Embedder))

	return nil
}

// prepareDirs creates the data, upload and database directories
func prepareDirs(cfg config.StorageConfig) error {
	dirs := []string{cfg.DataDir, cfg.UploadDir}
	if cfg.DBPath != "" && !isMemoryDB(cfg.DBPath) {
		dirs = append(dirs, filepath.Dir(cfg.DBPath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// isMemoryDB reports whether path opens an in-memory SQLite database
func isMemoryDB(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:") || strings.Contains(path, "mode=memory")
}

// HTTPServer returns the REST API over the wired services
func (a *App) HTTPServer(version string) *api.Server {
	return api.New(api.Deps{
		Storage:   a.Storage,
		Indexer:   a.Indexer,
		RAG:       a.RAG,
		Searcher:  a.Searcher,
		Generator: a.Generator,
		Vectors:   a.Vectors,
		Logger:    a.Logger,
	}, api.Config{
		Version:       version,
		CORSOrigins:   a.Config.Server.CORSOrigins,
		MaxUploadSize: a.Config.Upload.MaxFileSize,
		OllamaHost:    a.Config.Ollama.Host,
	})
}

// MCPServer returns the stdio MCP server over the wired services
func (a *App) MCPServer(version string) (*mcp.Server, error) {
	return mcp.NewServer(mcp.Deps{
		Storage:   a.Storage,
		Indexer:   a.Indexer,
		Searcher:  a.Searcher,
		RAG:       a.RAG,
		Vectors:   a.Vectors,
		Generator: a.Generator,
		Logger:    a.Logger,
	}, version)
}

// Close waits for background processing and closes the database
func (a *App) Close() error {
	var errs []error
	if a.Indexer != nil {
		if err := a.Indexer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop indexer: %w", err))
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
