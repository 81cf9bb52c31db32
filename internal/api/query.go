package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
)

// Stream event names
const (
	EventStart = "start"
	EventToken = "token"
	EventEnd   = "end"
	EventError = "error"
)

// POST /query
func (s *Server) query(c *gin.Context) {
	var req rag.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	resp, err := s.rag.Query(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /query/multi-source
func (s *Server) queryMultiSource(c *gin.Context) {
	var req rag.MultiSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	resp, err := s.rag.MultiSourceQuery(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /query/multi-source/search
func (s *Server) searchMultiSource(c *gin.Context) {
	var req rag.MultiSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	resp, err := s.rag.SearchSources(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AdvancedMultiSourceRequest is a multi-source query that weights sources
// by default. A missing threshold means rag.DefaultMinRelevance.
type AdvancedMultiSourceRequest struct {
	rag.MultiSourceRequest
	MinRelevance *float64 `json:"min_relevance_threshold"`
}

// POST /query/multi-source/advanced
func (s *Server) queryMultiSourceAdvanced(c *gin.Context) {
	var req AdvancedMultiSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	if req.SourceWeights == nil {
		weights := rag.DefaultSourceWeights()
		req.SourceWeights = &weights
	}
	req.MultiSourceRequest.MinRelevance = rag.DefaultMinRelevance
	if req.MinRelevance != nil {
		req.MultiSourceRequest.MinRelevance = *req.MinRelevance
	}

	resp, err := s.rag.MultiSourceQuery(c.Request.Context(), req.MultiSourceRequest)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BatchRequest holds up to rag.MaxBatchQueries queries
type BatchRequest struct {
	Queries []rag.QueryRequest `json:"queries"`
}

// POST /query/batch
func (s *Server) queryBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	resp, err := s.rag.QueryBatch(c.Request.Context(), req.Queries)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /query/stream
//
// Events: start {sources, model_used}, token {token}, end {query_id, confidence,
// query_time_ms}, and error {error, message} when generation fails mid-stream.
func (s *Server) queryStream(c *gin.Context) {
	var req rag.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}
	if err := s.rag.Validate(&req); err != nil {
		s.writeError(c, err)
		return
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	send := func(event string, data any) error {
		begin()
		c.SSEvent(event, data)
		c.Writer.Flush()
		return c.Request.Context().Err()
	}

	resp, err := s.rag.QueryStream(c.Request.Context(), req, rag.StreamHandler{
		Start: func(st rag.StreamStart) error {
			return send(EventStart, st)
		},
		Token: func(token string) error {
			return send(EventToken, gin.H{"token": token})
		},
	})
	if err != nil {
		if !started {
			s.writeError(c, err)
			return
		}
		_, body := newErrorResponse(err)
		s.logger.Warn("stream failed", zap.String("request_id", requestIDFrom(c)), zap.Error(err))
		_ = send(EventError, body)
		return
	}

	_ = send(EventEnd, gin.H{
		"query_id":      resp.QueryID,
		"confidence":    resp.Confidence,
		"query_time_ms": resp.QueryTimeMS,
		"model_used":    resp.ModelUsed,
	})
}

// GET /query/popular
func (s *Server) popularQueries(c *gin.Context) {
	limit, err := intQuery(c, "limit", rag.DefaultPopularLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	popular, err := s.rag.PopularQueries(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]PopularQueryResponse, len(popular))
	for i, p := range popular {
		out[i] = PopularQueryResponse{Question: p.Question, Count: p.Count}
	}
	c.JSON(http.StatusOK, gin.H{"popular_queries": out})
}

// GET /query/statistics
func (s *Server) queryStatistics(c *gin.Context) {
	stats, err := s.rag.Statistics(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// POST /query/feedback/:id?rating=N
func (s *Server) feedback(c *gin.Context) {
	rating, err := strconv.Atoi(c.Query("rating"))
	if err != nil {
		s.writeError(c, badRequest("query parameter rating must be an integer between 1 and 5"))
		return
	}

	id := c.Param("id")
	if err := s.rag.Feedback(c.Request.Context(), id, rating); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query_id": id,
		"rating":   rating,
		"message":  "피드백이 저장되었습니다.",
	})
}

// SearchRequest is a raw hybrid search
type SearchRequest struct {
	Query        string              `json:"query"`
	Limit        int                 `json:"limit"`
	Mode         string              `json:"mode"`
	Fusion       string              `json:"fusion"`
	Filters      *rag.DocumentFilter `json:"filters,omitempty"`
	MinRelevance float64             `json:"min_relevance"`
	UseCache     *bool               `json:"use_cache,omitempty"`
}

// SearchResponse is the ranked result list
type SearchResponse struct {
	Results       []SearchResultResponse `json:"results"`
	TotalResults  int                    `json:"total_results"`
	SearchMode    string                 `json:"search_mode"`
	Fusion        string                 `json:"fusion,omitempty"`
	DurationMS    int64                  `json:"duration_ms"`
	CacheHit      bool                   `json:"cache_hit"`
	VectorResults int                    `json:"vector_results"`
	TextResults   int                    `json:"text_results"`
}

// POST /search
func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	var filters *storage.SearchFilters
	if req.Filters != nil || req.MinRelevance != 0 {
		filters = &storage.SearchFilters{MinRelevance: req.MinRelevance}
		if f := req.Filters; f != nil {
			filters.DocumentIDs = f.DocumentIDs
			filters.DocumentTypes = f.DocumentTypes
			filters.ProductFamilies = f.ProductFamilies
			filters.ProductModels = f.ProductModels
			filters.ChunkTypes = f.ChunkTypes
		}
	}
	useCache := req.UseCache == nil || *req.UseCache

	start := time.Now()
	resp, err := s.searcher.Search(c.Request.Context(), searcher.SearchRequest{
		Query:    req.Query,
		Limit:    req.Limit,
		Mode:     searcher.SearchMode(req.Mode),
		Fusion:   searcher.FusionMethod(req.Fusion),
		Filters:  filters,
		UseCache: useCache,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		Results:       toSearchResults(resp.Results),
		TotalResults:  resp.TotalResults,
		SearchMode:    string(resp.SearchMode),
		Fusion:        string(resp.Fusion),
		DurationMS:    time.Since(start).Milliseconds(),
		CacheHit:      resp.CacheHit,
		VectorResults: resp.VectorResults,
		TextResults:   resp.TextResults,
	})
}
