package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ollamaCheckTimeout = 5 * time.Second

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// GET /health
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		Version:       s.config.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

// OllamaStatus reports the generation server
type OllamaStatus struct {
	Available bool     `json:"available"`
	Host      string   `json:"host,omitempty"`
	Model     string   `json:"model"`
	Models    []string `json:"models"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) ollamaStatus(ctx context.Context) OllamaStatus {
	ctx, cancel := context.WithTimeout(ctx, ollamaCheckTimeout)
	defer cancel()

	st := OllamaStatus{
		Host:   s.config.OllamaHost,
		Model:  s.generator.Model(),
		Models: []string{},
	}
	st.Available = s.generator.Available(ctx)
	if !st.Available {
		return st
	}
	models, err := s.generator.Models(ctx)
	if err != nil {
		s.logger.Debug("failed to list ollama models", zap.Error(err))
		st.Error = err.Error()
		return st
	}
	st.Models = models
	return st
}

// GET /status
func (s *Server) status(c *gin.Context) {
	ctx := c.Request.Context()

	index, err := s.storage.GetStatus(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ollama := s.ollamaStatus(ctx)

	state := "healthy"
	if !index.Health.DatabaseAccessible || !ollama.Available {
		state = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       state,
		"ollama":       ollama,
		"vector_index": s.vectors.Stats(),
		"index": gin.H{
			"documents_count":     index.DocumentsCount,
			"documents_by_status": index.DocumentsByStatus,
			"chunks_count":        index.ChunksCount,
			"embeddings_count":    index.EmbeddingsCount,
			"queries_count":       index.QueriesCount,
			"index_size_mb":       index.IndexSizeMB,
		},
		"health": gin.H{
			"database_accessible":  index.Health.DatabaseAccessible,
			"embeddings_available": index.Health.EmbeddingsAvailable,
			"fts_indexes_built":    index.Health.FTSIndexesBuilt,
			"ollama_available":     ollama.Available,
		},
		"timestamp": time.Now().UTC(),
	})
}

// GET /statistics
func (s *Server) statistics(c *gin.Context) {
	ctx := c.Request.Context()

	index, err := s.storage.GetStatus(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	byType, err := s.storage.CountDocumentsByType(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	queries, err := s.storage.QueryStats(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"documents": gin.H{
			"total":     index.DocumentsCount,
			"by_type":   byType,
			"by_status": index.DocumentsByStatus,
		},
		"chunks":     index.ChunksCount,
		"embeddings": index.EmbeddingsCount,
		"queries": gin.H{
			"total":                queries.TotalQueries,
			"avg_response_time_ms": queries.AvgResponseTimeMS,
			"avg_confidence":       queries.AvgConfidence,
			"avg_rating":           queries.AvgRating,
		},
		"index_size_mb":     index.IndexSizeMB,
		"processing_jobs":   s.indexer.Running(),
		"query_cache_size":  s.searcher.CacheLen(),
		"vector_index_size": s.vectors.Len(),
		"goroutines":        runtime.NumGoroutine(),
		"heap_alloc_mb":     float64(mem.HeapAlloc) / (1 << 20),
		"uptime_seconds":    time.Since(s.started).Seconds(),
	})
}

// GET /debug/vectorindex
func (s *Server) vectorIndexStats(c *gin.Context) {
	vs, kw := s.searcher.Weights()
	c.JSON(http.StatusOK, gin.H{
		"index":            s.vectors.Stats(),
		"query_cache_size": s.searcher.CacheLen(),
		"fusion_weights": gin.H{
			"vector":  vs,
			"keyword": kw,
		},
	})
}

// POST /debug/clear-cache
func (s *Server) clearCache(c *gin.Context) {
	n := s.searcher.ClearCache()
	s.logger.Info("query cache cleared", zap.Int("entries", n))
	c.JSON(http.StatusOK, gin.H{
		"cleared": n,
		"message": "검색 캐시가 초기화되었습니다.",
	})
}
