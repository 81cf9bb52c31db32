package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/metrics"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/internal/vectorindex"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25, fused
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

// FusionMethod defines how hybrid legs are combined
type FusionMethod string

const (
	FusionWeighted FusionMethod = "weighted" // Weighted sum of normalized leg scores
	FusionRRF      FusionMethod = "rrf"      // Reciprocal Rank Fusion
)

// Limits and defaults
const (
	MaxQueryLength        = 1000
	DefaultLimit          = 10
	MaxLimit              = 100
	DefaultRRFConstant    = 60.0
	DefaultVectorWeight   = 0.7
	DefaultKeywordWeight  = 0.3
	DefaultCacheTTL       = time.Hour
	DefaultCacheSize      = 1000
	filteredOverfetchRate = 4
)

// ErrInvalidRequest is wrapped by every request validation failure
var ErrInvalidRequest = errors.New("invalid search request")

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	Fusion      FusionMethod
	Filters     *storage.SearchFilters
	UseCache    bool    // Whether to use query cache
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Fusion        FusionMethod
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// Config holds searcher defaults
type Config struct {
	Mode          SearchMode
	Fusion        FusionMethod
	VectorWeight  float64
	KeywordWeight float64
	RRFConstant   float64
	CacheTTL      time.Duration
	CacheSize     int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates search operations across vector and text search
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	vectors  *vectorindex.Manager
	logger   *zap.Logger
	config   Config

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
	// generation is bumped on every purge; a search only caches its
	// response if no purge happened while it ran
	generation atomic.Uint64
}

// NewSearcher creates a new Searcher. vectors may be nil, in which case the
// vector leg scans storage directly.
func NewSearcher(store storage.Storage, emb embedder.Embedder, vectors *vectorindex.Manager, cfg Config, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = SearchModeHybrid
	}
	if cfg.Fusion == "" {
		cfg.Fusion = FusionWeighted
	}
	if cfg.VectorWeight < 0 || cfg.KeywordWeight < 0 || cfg.VectorWeight+cfg.KeywordWeight == 0 {
		cfg.VectorWeight, cfg.KeywordWeight = DefaultVectorWeight, DefaultKeywordWeight
	}
	total := cfg.VectorWeight + cfg.KeywordWeight
	cfg.VectorWeight /= total
	cfg.KeywordWeight /= total
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		// This should never happen with a positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:  store,
		embedder: emb,
		vectors:  vectors,
		logger:   logger.Named("searcher"),
		config:   cfg,
		cache:    cache,
	}
}

// Weights returns the normalized vector and keyword weights
func (s *Searcher) Weights() (vector, keyword float64) {
	return s.config.VectorWeight, s.config.KeywordWeight
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if s.embedder == nil {
		return nil, errors.New("embedder not initialized")
	}

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	gen := s.generation.Load()
	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode
	if req.Mode == SearchModeHybrid {
		response.Fusion = req.Fusion
	}
	metrics.SearchDuration.WithLabelValues(string(req.Mode)).Observe(response.Duration.Seconds())

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response, gen)
	}

	return response, nil
}

// legFilters drops MinRelevance, which applies to fused scores
func legFilters(f *storage.SearchFilters) *storage.SearchFilters {
	if f == nil {
		return nil
	}
	cp := *f
	cp.MinRelevance = 0
	return &cp
}

// runVectorSearch embeds the query and fetches up to fetch nearest chunks
func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, fetch int) ([]storage.VectorResult, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	filters := legFilters(req.Filters)
	if s.vectors == nil || s.vectors.Len() == 0 {
		return s.storage.SearchVector(ctx, embedding.Vector, fetch, filters)
	}

	k := fetch
	if !filters.IsEmpty() {
		k = fetch * filteredOverfetchRate
	}
	hits, err := s.vectors.Search(embedding.Vector, k)
	if err != nil {
		if errors.Is(err, vectorindex.ErrDimensionMismatch) {
			s.logger.Warn("vector index dimension differs from query, scanning storage", zap.Error(err))
			return s.storage.SearchVector(ctx, embedding.Vector, fetch, filters)
		}
		return nil, err
	}

	var allowed map[int64]bool
	if !filters.IsEmpty() {
		ids := make([]int64, len(hits))
		for i, h := range hits {
			ids[i] = h.ChunkID
		}
		allowed, err = s.storage.FilterChunks(ctx, ids, filters)
		if err != nil {
			return nil, err
		}
	}

	results := make([]storage.VectorResult, 0, fetch)
	for _, h := range hits {
		if allowed != nil && !allowed[h.ChunkID] {
			continue
		}
		results = append(results, storage.VectorResult{ChunkID: h.ChunkID, SimilarityScore: h.Score})
		if len(results) == fetch {
			break
		}
	}
	return results, nil
}

// runTextSearch fetches up to fetch BM25 matches
func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, fetch int) ([]storage.TextResult, error) {
	return s.storage.SearchText(ctx, req.Query, fetch, legFilters(req.Filters))
}

// hybridSearch runs both legs concurrently and fuses them. One failing leg is tolerated.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	fetch := req.Limit * 2

	var vectorResults []storage.VectorResult
	var textResults []storage.TextResult
	var vectorErr, textErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorResults, vectorErr = s.runVectorSearch(gctx, req, fetch)
		return nil
	})
	g.Go(func() error {
		textResults, textErr = s.runTextSearch(gctx, req, fetch)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vectorErr != nil && textErr != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorErr, textErr)
	}
	if vectorErr != nil {
		s.logger.Warn("vector leg failed, using keyword results only", zap.Error(vectorErr))
	}
	if textErr != nil {
		s.logger.Warn("keyword leg failed, using vector results only", zap.Error(textErr))
	}

	var fused []rankedResult
	switch req.Fusion {
	case FusionRRF:
		fused = applyRRF(vectorResults, textResults, req.RRFConstant)
	default:
		fused = applyWeighted(vectorResults, textResults, s.config.VectorWeight, s.config.KeywordWeight)
	}

	results, err := s.fetchResults(ctx, fused, req)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorResults),
		TextResults:   len(textResults),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorResults, err := s.runVectorSearch(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}

	ranked := applyWeighted(vectorResults, nil, 1, 0)
	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorResults),
	}, nil
}

// keywordSearch performs only BM25 text search
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	textResults, err := s.runTextSearch(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}

	ranked := applyWeighted(nil, textResults, 0, 1)
	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(textResults),
	}, nil
}

// rankedResult represents a chunk with its fused and per-leg scores
type rankedResult struct {
	chunkID      int64
	score        float64
	vectorScore  float64
	keywordScore float64
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// applyWeighted combines legs as wv*vector + wk*keyword. Vector scores are cosine
// clamped to [0,1]; keyword scores are |bm25| divided by the best |bm25| in the set.
// A chunk missing from a leg scores 0 there.
func applyWeighted(vectorResults []storage.VectorResult, textResults []storage.TextResult, wv, wk float64) []rankedResult {
	byID := make(map[int64]*rankedResult, len(vectorResults)+len(textResults))
	get := func(id int64) *rankedResult {
		r, ok := byID[id]
		if !ok {
			r = &rankedResult{chunkID: id}
			byID[id] = r
		}
		return r
	}

	for _, vr := range vectorResults {
		get(vr.ChunkID).vectorScore = clamp01(vr.SimilarityScore)
	}

	var maxBM25 float64
	for _, tr := range textResults {
		maxBM25 = math.Max(maxBM25, math.Abs(tr.BM25Score))
	}
	for _, tr := range textResults {
		r := get(tr.ChunkID)
		if maxBM25 > 0 {
			r.keywordScore = math.Abs(tr.BM25Score) / maxBM25
		} else {
			r.keywordScore = 1
		}
	}

	results := make([]rankedResult, 0, len(byID))
	for _, r := range byID {
		r.score = clamp01(wv*r.vectorScore + wk*r.keywordScore)
		results = append(results, *r)
	}
	sortRankedResults(results)
	return results
}

// applyRRF applies Reciprocal Rank Fusion to combine vector and text results.
// RRF(d) = sum 1/(k + rank(d)), scaled by the best possible score so it lands in [0,1].
func applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	byID := make(map[int64]*rankedResult)
	get := func(id int64) *rankedResult {
		r, ok := byID[id]
		if !ok {
			r = &rankedResult{chunkID: id}
			byID[id] = r
		}
		return r
	}

	for rank, vr := range vectorResults {
		r := get(vr.ChunkID)
		r.score += 1.0 / (k + float64(rank+1))
		r.vectorScore = clamp01(vr.SimilarityScore)
	}

	var maxBM25 float64
	for _, tr := range textResults {
		maxBM25 = math.Max(maxBM25, math.Abs(tr.BM25Score))
	}
	for rank, tr := range textResults {
		r := get(tr.ChunkID)
		r.score += 1.0 / (k + float64(rank+1))
		if maxBM25 > 0 {
			r.keywordScore = math.Abs(tr.BM25Score) / maxBM25
		}
	}

	best := 2.0 / (k + 1)
	results := make([]rankedResult, 0, len(byID))
	for _, r := range byID {
		r.score = clamp01(r.score / best)
		results = append(results, *r)
	}
	sortRankedResults(results)
	return results
}

// fetchResults applies min relevance and the limit, then loads chunk and document data
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, req SearchRequest) ([]types.SearchResult, error) {
	minRelevance := 0.0
	if req.Filters != nil {
		minRelevance = req.Filters.MinRelevance
	}

	kept := make([]rankedResult, 0, req.Limit)
	for _, r := range ranked {
		if r.score < minRelevance {
			continue
		}
		kept = append(kept, r)
		if len(kept) == req.Limit {
			break
		}
	}
	if len(kept) == 0 {
		return []types.SearchResult{}, nil
	}

	ids := make([]int64, len(kept))
	for i, r := range kept {
		ids[i] = r.chunkID
	}
	details, err := s.storage.GetChunkDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	results := make([]types.SearchResult, 0, len(kept))
	for _, r := range kept {
		d, ok := details[r.chunkID]
		if !ok {
			continue // Deleted between search and load
		}
		results = append(results, types.SearchResult{
			ChunkID:        r.chunkID,
			Rank:           len(results) + 1,
			RelevanceScore: r.score,
			VectorScore:    r.vectorScore,
			KeywordScore:   r.keywordScore,
			Document: &types.DocumentRef{
				ID:            d.DocumentID,
				Filename:      d.Filename,
				OriginalName:  d.OriginalName,
				DocumentType:  types.DocumentType(d.DocumentType),
				ProductFamily: d.ProductFamily,
				ProductModel:  d.ProductModel,
			},
			Content:    d.Content,
			PageNumber: d.PageNumber,
			Section:    d.Section,
			ChunkType:  types.ChunkType(d.ChunkType),
		})
	}
	return results, nil
}

// validateRequest applies defaults and rejects malformed requests
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if n := utf8.RuneCountInString(req.Query); n > MaxQueryLength {
		return fmt.Errorf("%w: query is %d characters, max %d", ErrInvalidRequest, n, MaxQueryLength)
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.Mode == "" {
		req.Mode = s.config.Mode
	}
	switch req.Mode {
	case SearchModeHybrid, SearchModeVector, SearchModeKeyword:
	default:
		return fmt.Errorf("%w: unsupported search mode %q", ErrInvalidRequest, req.Mode)
	}

	if req.Fusion == "" {
		req.Fusion = s.config.Fusion
	}
	switch req.Fusion {
	case FusionWeighted, FusionRRF:
	default:
		return fmt.Errorf("%w: unsupported fusion method %q", ErrInvalidRequest, req.Fusion)
	}

	if req.RRFConstant <= 0 {
		req.RRFConstant = s.config.RRFConstant
	}

	if req.Filters != nil && (req.Filters.MinRelevance < 0 || req.Filters.MinRelevance > 1) {
		return fmt.Errorf("%w: min_relevance must be between 0 and 1", ErrInvalidRequest)
	}

	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a copy of response under the request's hash, unless the
// cache was purged after gen was read
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse, gen uint64) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.config.CacheTTL),
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation.Load() != gen {
		s.logger.Debug("search raced with cache invalidation, not caching")
		return
	}
	s.cache.Add(computeQueryHash(req), entry)
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		// DocumentRef holds only strings, so a shallow copy of the struct suffices
		if result.Document != nil {
			docCopy := *result.Document
			dst.Results[i].Document = &docCopy
		}
	}
	return &dst
}

// computeQueryHash hashes the normalized request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(strings.Join(strings.Fields(strings.ToLower(req.Query)), " "))
	fmt.Fprintf(&data, "|%d|%s|%s|%g", req.Limit, req.Mode, req.Fusion, req.RRFConstant)

	if f := req.Filters; f != nil {
		data.WriteString("|filters:")
		for _, values := range [][]string{f.DocumentIDs, f.DocumentTypes, f.ProductFamilies, f.ProductModels, f.ChunkTypes} {
			sorted := slices.Clone(values)
			sort.Strings(sorted)
			data.WriteString(strings.Join(sorted, ","))
			data.WriteString("|")
		}
		fmt.Fprintf(&data, "%.4f", f.MinRelevance)
	}

	return sha256.Sum256([]byte(data.String()))
}

// sortRankedResults sorts by score descending, then chunk id ascending
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
}

// InvalidateCache drops every cached response. Called whenever documents are indexed or deleted.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.generation.Add(1)
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// ClearCache empties the cache and returns how many entries it held
func (s *Searcher) ClearCache() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation.Add(1)
	n := s.cache.Len()
	s.cache.Purge()
	return n
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
