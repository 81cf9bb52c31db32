package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/metrics"
	"github.com/dshills/datasheet-rag/internal/quality"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// DataSource is a place a multi-source query searches
type DataSource string

const (
	SourceDocuments DataSource = "documents"
	SourceDatabase  DataSource = "database"
	SourceWeb       DataSource = "web_search"
)

// Strategy controls how sources are searched and combined
type Strategy string

const (
	// StrategyBalanced searches every source in parallel
	StrategyBalanced Strategy = "balanced"
	// StrategyDocumentsFirst only searches the other sources when documents
	// returned fewer than top_k_per_source results
	StrategyDocumentsFirst Strategy = "documents_first"
	// StrategyComprehensive doubles top_k_per_source, capped at MaxTopKPerSource
	StrategyComprehensive Strategy = "comprehensive"
	// StrategyFast feeds at most fastCombinedSources results to the model
	StrategyFast Strategy = "fast"
)

// Source search statuses
const (
	SourceStatusSuccess  = "success"
	SourceStatusFailed   = "failed"
	SourceStatusDisabled = "disabled"
	SourceStatusSkipped  = "skipped"
)

const (
	DefaultTopKPerSource = 3
	MaxTopKPerSource     = 10

	// MaxCombinedSources caps the results fed to the model
	MaxCombinedSources  = 10
	fastCombinedSources = 5

	// DefaultMinRelevance is the threshold of the advanced endpoint
	DefaultMinRelevance = 0.3

	historyMinConfidence = 0.7
	historyLimit         = 50
	metadataPageSize     = 100
	maxMetadataDocuments = 500
	maxSectionTitles     = 20
)

var errNoEmbedder = errors.New("database source needs an embedder")

// SourceWeights scale relevance per source before results are combined
type SourceWeights struct {
	Documents float64 `json:"documents" validate:"min=0,max=1"`
	Database  float64 `json:"database" validate:"min=0,max=1"`
	WebSearch float64 `json:"web_search" validate:"min=0,max=1"`
}

// DefaultSourceWeights favors the indexed datasheets
func DefaultSourceWeights() SourceWeights {
	return SourceWeights{Documents: 0.6, Database: 0.3, WebSearch: 0.1}
}

func (w SourceWeights) weight(src DataSource) float64 {
	switch src {
	case SourceDocuments:
		return w.Documents
	case SourceDatabase:
		return w.Database
	case SourceWeb:
		return w.WebSearch
	}
	return 0
}

// MultiSourceRequest is a question answered from several sources.
// A nil SourceWeights leaves relevance unweighted.
type MultiSourceRequest struct {
	Question        string          `json:"question" validate:"required,max=1000"`
	UserRole        types.UserRole  `json:"user_role" validate:"omitempty,oneof=engineer quality sales support"`
	DataSources     []DataSource    `json:"data_sources" validate:"omitempty,dive,oneof=documents database web_search"`
	DocumentFilter  *DocumentFilter `json:"document_filter,omitempty"`
	TopKPerSource   int             `json:"top_k_per_source" validate:"omitempty,min=1,max=10"`
	EnableWebSearch bool            `json:"enable_web_search"`
	WebSearchQuery  string          `json:"web_search_query,omitempty" validate:"max=1000"`
	Strategy        Strategy        `json:"search_strategy,omitempty" validate:"omitempty,oneof=balanced documents_first comprehensive fast"`
	SourceWeights   *SourceWeights  `json:"source_weights,omitempty"`
	MinRelevance    float64         `json:"min_relevance_threshold" validate:"min=0,max=1"`
}

// MultiSourceResult is one hit from any source
type MultiSourceResult struct {
	SourceType     DataSource     `json:"source_type"`
	SourceID       string         `json:"source_id"`
	Content        string         `json:"content"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	DocumentName   string         `json:"document_name,omitempty"`
	PageNumber     int            `json:"page_number,omitempty"`
	Section        string         `json:"section,omitempty"`
	URL            string         `json:"url,omitempty"`
	WebSource      string         `json:"web_source,omitempty"`

	text string
}

// SourceSearchResult is the outcome of searching one source
type SourceSearchResult struct {
	SourceType   DataSource          `json:"source_type"`
	Results      []MultiSourceResult `json:"results"`
	SearchTimeMS int64               `json:"search_time_ms"`
	TotalFound   int                 `json:"total_found"`
	Status       string              `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// MultiSourceResponse is an answer built from several sources
type MultiSourceResponse struct {
	QueryID              string              `json:"query_id,omitempty"`
	Answer               string              `json:"answer"`
	Confidence           float64             `json:"confidence"`
	Sources              []MultiSourceResult `json:"sources"`
	QueryTimeMS          int64               `json:"query_time_ms"`
	ModelUsed            string              `json:"model_used"`
	SourcesByType        map[DataSource]int  `json:"sources_by_type"`
	SearchStrategy       Strategy            `json:"search_strategy"`
	TotalSourcesSearched int                 `json:"total_sources_searched"`
}

// MultiSourceSearchResponse holds per-source results without an answer
type MultiSourceSearchResponse struct {
	Question          string               `json:"question"`
	SearchStrategy    Strategy             `json:"search_strategy"`
	SourceResults     []SourceSearchResult `json:"source_results"`
	SuccessfulSources int                  `json:"successful_sources"`
	FailedSources     int                  `json:"failed_sources"`
	TotalSearchTimeMS int64                `json:"total_search_time_ms"`
}

// WebResult is one page returned by a WebSearcher
type WebResult struct {
	Title   string
	Content string
	URL     string
	Source  string
	Score   float64
}

// WebSearcher looks up external pages for the web source
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string, limit int) ([]WebResult, error)
}

// ValidateMultiSource trims the request, applies defaults and checks it.
// Duplicate data sources are dropped and an empty list means documents only.
func (s *Service) ValidateMultiSource(req *MultiSourceRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	req.WebSearchQuery = strings.TrimSpace(req.WebSearchQuery)
	if err := s.check(req); err != nil {
		return err
	}

	if req.UserRole == "" {
		req.UserRole = types.RoleEngineer
	}
	if req.TopKPerSource == 0 {
		req.TopKPerSource = DefaultTopKPerSource
	}

	sources := make([]DataSource, 0, len(req.DataSources))
	for _, src := range req.DataSources {
		if !slices.Contains(sources, src) {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		sources = append(sources, SourceDocuments)
	}
	req.DataSources = sources

	if req.Strategy == "" {
		req.Strategy = chooseStrategy(req.DataSources, req.TopKPerSource)
	}
	return nil
}

func chooseStrategy(sources []DataSource, topK int) Strategy {
	switch {
	case len(sources) == 1:
		return StrategyFast
	case slices.Contains(sources, SourceWeb):
		return StrategyComprehensive
	case topK <= DefaultTopKPerSource:
		return StrategyFast
	default:
		return StrategyBalanced
	}
}

// SearchSources searches every requested source and returns the results per source
func (s *Service) SearchSources(ctx context.Context, req MultiSourceRequest) (*MultiSourceSearchResponse, error) {
	start := time.Now()
	if err := s.ValidateMultiSource(&req); err != nil {
		return nil, err
	}

	results := s.searchSources(ctx, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &MultiSourceSearchResponse{
		Question:       req.Question,
		SearchStrategy: req.Strategy,
		SourceResults:  results,
	}
	for _, r := range results {
		switch r.Status {
		case SourceStatusSuccess:
			resp.SuccessfulSources++
		case SourceStatusFailed:
			resp.FailedSources++
		}
	}
	resp.TotalSearchTimeMS = time.Since(start).Milliseconds()
	return resp, nil
}

// MultiSourceQuery answers a question from documents, the database and the web.
// A failed source is reported in the log and left out of the answer.
func (s *Service) MultiSourceQuery(ctx context.Context, req MultiSourceRequest) (resp *MultiSourceResponse, err error) {
	start := time.Now()
	defer func() {
		role := roleLabel(req.UserRole)
		metrics.QueriesTotal.WithLabelValues(role, metrics.Status(err)).Inc()
		metrics.QueryDuration.WithLabelValues(role).Observe(time.Since(start).Seconds())
	}()

	if err := s.ValidateMultiSource(&req); err != nil {
		return nil, err
	}

	searched := s.searchSources(ctx, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := MaxCombinedSources
	if req.Strategy == StrategyFast {
		limit = fastCombinedSources
	}
	combined := combineResults(searched, req.SourceWeights, req.MinRelevance, limit)

	resp = &MultiSourceResponse{
		Sources:        combined,
		SourcesByType:  countByType(combined),
		SearchStrategy: req.Strategy,
	}
	for _, r := range searched {
		if r.Status == SourceStatusSuccess || r.Status == SourceStatusFailed {
			resp.TotalSourcesSearched++
		}
	}

	if len(combined) == 0 {
		resp.Answer = NotFoundAnswer
		resp.ModelUsed = ModelNone
		resp.QueryTimeMS = time.Since(start).Milliseconds()
		s.logMultiSource(ctx, req, resp)
		return resp, nil
	}

	prompt := buildPrompt(s.config.PromptLanguage, req.UserRole, req.Question,
		buildMultiSourceContext(combined, s.config.PromptLanguage, s.config.MaxContextLength))

	gctx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
	answer, err := s.generator.Generate(gctx, prompt, s.generationOptions())
	cancel()
	if err != nil {
		return nil, s.generationError(ctx, err)
	}

	sources := make([]quality.Source, len(combined))
	var sum float64
	for i, r := range combined {
		sources[i] = quality.Source{Content: r.text}
		sum += r.RelevanceScore
	}
	answer, confidence := s.assess(req.Question, answer, blendConfidence(sum/float64(len(combined)), answer), sources)

	resp.Answer = answer
	resp.Confidence = confidence
	resp.ModelUsed = s.generator.Model()
	resp.QueryTimeMS = time.Since(start).Milliseconds()
	s.logMultiSource(ctx, req, resp)

	s.logger.Info("multi-source query answered",
		zap.String("query_id", resp.QueryID),
		zap.String("strategy", string(req.Strategy)),
		zap.Any("sources_by_type", resp.SourcesByType),
		zap.Float64("confidence", confidence),
		zap.Int64("query_time_ms", resp.QueryTimeMS))
	return resp, nil
}

func (s *Service) logMultiSource(ctx context.Context, req MultiSourceRequest, resp *MultiSourceResponse) {
	resp.QueryID = s.storeLog(ctx, &storage.QueryLog{
		Question:       req.Question,
		UserRole:       string(req.UserRole),
		Answer:         resp.Answer,
		Confidence:     resp.Confidence,
		ResponseTimeMS: resp.QueryTimeMS,
		SourcesCount:   len(resp.Sources),
		ModelUsed:      resp.ModelUsed,
	})
}

// searchSources returns one result per requested source, in request order
func (s *Service) searchSources(ctx context.Context, req MultiSourceRequest) []SourceSearchResult {
	topK := req.TopKPerSource
	if req.Strategy == StrategyComprehensive {
		topK = min(topK*2, MaxTopKPerSource)
	}

	results := make([]SourceSearchResult, len(req.DataSources))
	if req.Strategy == StrategyDocumentsFirst {
		if i := slices.Index(req.DataSources, SourceDocuments); i >= 0 {
			results[i] = s.searchSource(ctx, SourceDocuments, req, topK)
			if results[i].Status == SourceStatusSuccess && results[i].TotalFound >= topK {
				for j, src := range req.DataSources {
					if j != i {
						results[j] = SourceSearchResult{SourceType: src, Results: []MultiSourceResult{}, Status: SourceStatusSkipped}
					}
				}
				return results
			}
		}
	}

	var g errgroup.Group
	for i, src := range req.DataSources {
		if results[i].Status != "" {
			continue
		}
		g.Go(func() error {
			results[i] = s.searchSource(ctx, src, req, topK)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) searchSource(ctx context.Context, src DataSource, req MultiSourceRequest, topK int) SourceSearchResult {
	out := SourceSearchResult{SourceType: src, Results: []MultiSourceResult{}}
	if src == SourceWeb && (!req.EnableWebSearch || s.web == nil) {
		out.Status = SourceStatusDisabled
		metrics.SourceSearchesTotal.WithLabelValues(string(src), out.Status).Inc()
		return out
	}

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.config.RetrievalTimeout)
	defer cancel()

	var (
		results []MultiSourceResult
		err     error
	)
	switch src {
	case SourceDocuments:
		results, err = s.searchDocuments(rctx, req, topK)
	case SourceDatabase:
		results, err = s.searchDatabase(rctx, req, topK)
	case SourceWeb:
		results, err = s.searchWeb(rctx, req, topK)
	default:
		err = fmt.Errorf("unknown data source %q", src)
	}
	out.SearchTimeMS = time.Since(start).Milliseconds()

	if err != nil {
		s.logger.Warn("source search failed", zap.String("source", string(src)), zap.Error(err))
		out.Status = SourceStatusFailed
		out.ErrorMessage = err.Error()
	} else {
		out.Status = SourceStatusSuccess
		out.Results = results
		out.TotalFound = len(results)
	}
	metrics.SourceSearchesTotal.WithLabelValues(string(src), out.Status).Inc()
	return out
}

func (s *Service) searchDocuments(ctx context.Context, req MultiSourceRequest, topK int) ([]MultiSourceResult, error) {
	results, err := s.retrieve(ctx, QueryRequest{
		Question:       req.Question,
		UserRole:       req.UserRole,
		DocumentFilter: req.DocumentFilter,
		TopK:           topK,
	})
	if err != nil {
		return nil, err
	}

	out := make([]MultiSourceResult, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		res := MultiSourceResult{
			SourceType:     SourceDocuments,
			SourceID:       "chunk_" + strconv.FormatInt(r.ChunkID, 10),
			Content:        preview(r.Content),
			RelevanceScore: r.RelevanceScore,
			Metadata:       map[string]any{"chunk_id": r.ChunkID, "chunk_type": r.ChunkType},
			PageNumber:     r.PageNumber,
			Section:        r.Section,
			text:           r.Content,
		}
		if r.Document != nil {
			res.DocumentName = r.Document.Filename
			res.Metadata["document_id"] = r.Document.ID
			res.Metadata["product_model"] = r.Document.ProductModel
		}
		out = append(out, res)
	}
	return out, nil
}

// searchDatabase ranks document metadata and confident past answers by
// cosine similarity to the question
func (s *Service) searchDatabase(ctx context.Context, req MultiSourceRequest, topK int) ([]MultiSourceResult, error) {
	if s.embedder == nil {
		return nil, errNoEmbedder
	}

	records, err := s.databaseRecords(ctx, req.DocumentFilter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []MultiSourceResult{}, nil
	}

	query, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.text
	}
	batch, err := s.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("embed records: %w", err)
	}
	if len(batch.Embeddings) != len(records) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d records", len(batch.Embeddings), len(records))
	}

	for i := range records {
		records[i].RelevanceScore = round3(cosine(query.Vector, batch.Embeddings[i].Vector))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].RelevanceScore != records[j].RelevanceScore {
			return records[i].RelevanceScore > records[j].RelevanceScore
		}
		return records[i].SourceID < records[j].SourceID
	})
	if len(records) > topK {
		records = records[:topK]
	}
	return records, nil
}

// databaseRecords renders completed documents and, without a document
// filter, the confident query history as searchable records
func (s *Service) databaseRecords(ctx context.Context, filter *DocumentFilter) ([]MultiSourceResult, error) {
	l := recordLabels[s.config.PromptLanguage]

	var records []MultiSourceResult
	for page := 1; (page-1)*metadataPageSize < maxMetadataDocuments; page++ {
		docs, total, err := s.storage.ListDocuments(ctx, storage.ListOptions{
			Page:   page,
			Limit:  metadataPageSize,
			Status: types.StatusCompleted,
		})
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		for _, d := range docs {
			if !filter.matches(d) {
				continue
			}
			sections, err := s.storage.ListSections(ctx, d.ID)
			if err != nil {
				return nil, fmt.Errorf("sections of %s: %w", d.ID, err)
			}
			records = append(records, documentRecord(d, sections, l))
		}
		if len(docs) == 0 || page*metadataPageSize >= total {
			break
		}
	}

	if !filter.toSearchFilters().IsEmpty() {
		return records, nil
	}
	history, err := s.storage.ConfidentQueries(ctx, historyMinConfidence, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for _, q := range history {
		if strings.TrimSpace(q.Answer) == "" {
			continue
		}
		text := fmt.Sprintf("%s: %s\n%s: %s", l.question, q.Question, l.answer, q.Answer)
		records = append(records, MultiSourceResult{
			SourceType: SourceDatabase,
			SourceID:   "query_" + q.ID,
			Content:    preview(text),
			Metadata: map[string]any{
				"record_type": "query_history",
				"confidence":  q.Confidence,
				"asked_at":    q.CreatedAt,
			},
			text: text,
		})
	}
	return records, nil
}

type recordLabelSet struct {
	filename, docType, family, model, version, language, pages, sections, question, answer string
}

var recordLabels = map[string]recordLabelSet{
	LanguageKorean: {
		filename: "파일명", docType: "문서 타입", family: "제품군", model: "모델", version: "버전",
		language: "언어", pages: "페이지 수", sections: "섹션", question: "질문", answer: "답변",
	},
	LanguageEnglish: {
		filename: "Filename", docType: "Document type", family: "Product family", model: "Model", version: "Version",
		language: "Language", pages: "Pages", sections: "Sections", question: "Question", answer: "Answer",
	},
}

func documentRecord(d *storage.Document, sections []*storage.Section, l recordLabelSet) MultiSourceResult {
	name := d.OriginalName
	if name == "" {
		name = d.Filename
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", l.filename, strings.TrimSuffix(name, filepath.Ext(name)))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "\n%s: %s", label, value)
		}
	}
	field(l.docType, string(d.DocumentType))
	field(l.family, d.ProductFamily)
	field(l.model, d.ProductModel)
	field(l.version, d.Version)
	field(l.language, d.Language)
	if d.PageCount > 0 {
		fmt.Fprintf(&b, "\n%s: %d", l.pages, d.PageCount)
	}

	titles := make([]string, 0, min(len(sections), maxSectionTitles))
	for _, sec := range sections {
		if len(titles) == maxSectionTitles {
			break
		}
		titles = append(titles, sec.Title)
	}
	field(l.sections, strings.Join(titles, ", "))

	text := b.String()
	return MultiSourceResult{
		SourceType:   SourceDatabase,
		SourceID:     "document_" + d.ID,
		Content:      preview(text),
		DocumentName: d.Filename,
		Metadata: map[string]any{
			"record_type":    "document",
			"document_id":    d.ID,
			"document_type":  string(d.DocumentType),
			"product_family": d.ProductFamily,
			"product_model":  d.ProductModel,
		},
		text: text,
	}
}

func (s *Service) searchWeb(ctx context.Context, req MultiSourceRequest, topK int) ([]MultiSourceResult, error) {
	query := req.WebSearchQuery
	if query == "" {
		query = req.Question
	}

	hits, err := s.web.SearchWeb(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	out := make([]MultiSourceResult, 0, len(hits))
	for i, h := range hits {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		out = append(out, MultiSourceResult{
			SourceType:     SourceWeb,
			SourceID:       "web_" + strconv.Itoa(i+1),
			Content:        preview(h.Content),
			RelevanceScore: round3(h.Score),
			Metadata:       map[string]any{"title": h.Title},
			URL:            h.URL,
			WebSource:      h.Source,
			text:           h.Content,
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// matches reports whether a document passes the filter's document fields
func (f *DocumentFilter) matches(d *storage.Document) bool {
	if f == nil {
		return true
	}
	oneOf := func(values []string, v string) bool {
		return len(values) == 0 || slices.Contains(values, v)
	}
	return oneOf(f.DocumentIDs, d.ID) &&
		oneOf(f.DocumentTypes, string(d.DocumentType)) &&
		oneOf(f.ProductFamilies, d.ProductFamily) &&
		oneOf(f.ProductModels, d.ProductModel)
}

// combineResults weights the successful results, drops those below
// minRelevance and keeps the best limit
func combineResults(searched []SourceSearchResult, weights *SourceWeights, minRelevance float64, limit int) []MultiSourceResult {
	combined := []MultiSourceResult{}
	for _, sr := range searched {
		if sr.Status != SourceStatusSuccess {
			continue
		}
		for _, r := range sr.Results {
			if weights != nil {
				r.RelevanceScore = round3(r.RelevanceScore * weights.weight(r.SourceType))
			}
			if r.RelevanceScore < minRelevance {
				continue
			}
			combined = append(combined, r)
		}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].RelevanceScore > combined[j].RelevanceScore
	})
	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined
}

func countByType(results []MultiSourceResult) map[DataSource]int {
	counts := make(map[DataSource]int)
	for _, r := range results {
		counts[r.SourceType]++
	}
	return counts
}

// buildMultiSourceContext renders results as labeled source blocks, capped at maxLength runes
func buildMultiSourceContext(results []MultiSourceResult, lang string, maxLength int) string {
	l := labels[normalizeLanguage(lang)]

	parts := make([]string, 0, len(results))
	for i, r := range results {
		var origin string
		switch r.SourceType {
		case SourceDocuments:
			origin = fmt.Sprintf("%s: %s", l.document, r.DocumentName)
			if r.PageNumber > 0 {
				origin += fmt.Sprintf(", %s %d", l.page, r.PageNumber)
			}
		case SourceDatabase:
			origin = fmt.Sprintf("%s: %v", l.database, r.Metadata["record_type"])
			if r.DocumentName != "" {
				origin += ", " + r.DocumentName
			}
		case SourceWeb:
			origin = fmt.Sprintf("%s: %s", l.web, r.WebSource)
			if r.URL != "" {
				origin += ", " + r.URL
			}
		}
		parts = append(parts, fmt.Sprintf("[%s %d] (%s)\n%s", l.source, i+1, origin, r.text))
	}

	out := strings.Join(parts, "\n\n")
	if maxLength > 0 && utf8.RuneCountInString(out) > maxLength {
		out = string([]rune(out)[:maxLength]) + l.truncated
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
