package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/llm"
	"github.com/dshills/datasheet-rag/internal/metrics"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/internal/vectorindex"
)

const (
	// BasePath prefixes every API route except /metrics
	BasePath = "/api/v1"

	// DefaultMaxUploadSize bounds multipart bodies when Config leaves it unset
	DefaultMaxUploadSize = indexer.DefaultMaxFileSize

	multipartOverhead = 1 << 20
	shutdownTimeout   = 15 * time.Second
)

// Deps are the services behind the API
type Deps struct {
	Storage   storage.Storage
	Indexer   *indexer.Indexer
	RAG       *rag.Service
	Searcher  *searcher.Searcher
	Generator llm.Generator
	Vectors   *vectorindex.Manager
	Logger    *zap.Logger
}

// Config holds HTTP-level settings
type Config struct {
	Version       string
	CORSOrigins   []string
	MaxUploadSize int64
	OllamaHost    string
}

// Server is the REST API
type Server struct {
	storage   storage.Storage
	indexer   *indexer.Indexer
	rag       *rag.Service
	searcher  *searcher.Searcher
	generator llm.Generator
	vectors   *vectorindex.Manager
	logger    *zap.Logger
	config    Config

	router  *gin.Engine
	started time.Time
}

// New builds the router and registers every route
func New(deps Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		storage:   deps.Storage,
		indexer:   deps.Indexer,
		rag:       deps.RAG,
		searcher:  deps.Searcher,
		generator: deps.Generator,
		vectors:   deps.Vectors,
		logger:    logger.Named("api"),
		config:    cfg,
		started:   time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(requestID(), recovery(s.logger), accessLog(s.logger), requestMetrics(), cors(s.config.CORSOrigins))

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group(BasePath)
	{
		v1.GET("/health", s.health)
		v1.GET("/status", s.status)
		v1.GET("/statistics", s.statistics)
		v1.POST("/reindex", s.reindex)

		upload := v1.Group("/upload")
		upload.POST("", s.upload)
		upload.GET("/status/:id", s.uploadStatus)
		upload.DELETE("/:id", s.deleteDocument)

		docs := v1.Group("/documents")
		docs.GET("", s.listDocuments)
		docs.GET("/:id", s.getDocument)

		query := v1.Group("/query")
		query.POST("", s.query)
		query.POST("/batch", s.queryBatch)
		query.POST("/stream", s.queryStream)
		query.POST("/multi-source", s.queryMultiSource)
		query.POST("/multi-source/search", s.searchMultiSource)
		query.POST("/multi-source/advanced", s.queryMultiSourceAdvanced)
		query.GET("/popular", s.popularQueries)
		query.GET("/statistics", s.queryStatistics)
		query.POST("/feedback/:id", s.feedback)

		v1.POST("/search", s.search)

		selftest := v1.Group("/selftest")
		selftest.POST("/run", s.runSelfTest)
		selftest.POST("/validate", s.validateAnswer)
		selftest.GET("/suites", s.listSuites)
		selftest.GET("/suite/:name", s.getSuite)

		debug := v1.Group("/debug")
		debug.GET("/vectorindex", s.vectorIndexStats)
		debug.POST("/clear-cache", s.clearCache)
	}

	r.NoRoute(func(c *gin.Context) {
		s.writeError(c, &notFoundError{path: c.Request.URL.Path})
	})
	return r
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type notFoundError struct {
	path string
}

func (e *notFoundError) Error() string { return "route not found: " + e.path }
func (e *notFoundError) Unwrap() error { return storage.ErrNotFound }
