package rag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/llm"
	"github.com/dshills/datasheet-rag/internal/metrics"
	"github.com/dshills/datasheet-rag/internal/quality"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// Defaults and limits
const (
	DefaultTopK              = 5
	MaxTopK                  = 20
	MaxQuestionLength        = 1000
	MaxBatchQueries          = 10
	BatchConcurrency         = 4
	DefaultMaxContextLength  = 3000
	DefaultRetrievalTimeout  = 30 * time.Second
	DefaultGenerationTimeout = 120 * time.Second
	DefaultPopularLimit      = 10
	MaxPopularLimit          = 100

	// MinQualityScore is the quality below which an answer is replaced by FallbackAnswer
	MinQualityScore = 0.3

	// FallbackConfidence is reported with FallbackAnswer
	FallbackConfidence = 0.1

	// ModelNone is reported when no model was called
	ModelNone = "N/A"

	// ModelError is reported on batch items that failed
	ModelError = "error"
)

// Fixed answers
const (
	NotFoundAnswer = "죄송합니다. 관련 정보를 찾을 수 없습니다. 다른 키워드로 검색해보시거나 문서가 업로드되었는지 확인해주세요."
	FallbackAnswer = "죄송합니다. 정확한 정보를 찾을 수 없습니다. 다른 키워드로 검색해보시거나 문서 내용을 확인해주세요."
)

var (
	// ErrInvalidRequest wraps request validation failures
	ErrInvalidRequest = errors.New("invalid query request")

	// ErrInvalidRating is returned for feedback ratings outside 1..5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrBatchTooLarge is returned for batches of more than MaxBatchQueries
	ErrBatchTooLarge = errors.New("too many queries in batch")

	// ErrRetrievalTimeout is returned when the search exceeds its timeout
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrGenerationTimeout is returned when the LLM exceeds its timeout
	ErrGenerationTimeout = errors.New("answer generation timed out")
)

// DocumentFilter narrows retrieval to matching documents and chunks
type DocumentFilter struct {
	DocumentIDs     []string `json:"document_ids,omitempty"`
	DocumentTypes   []string `json:"document_types,omitempty" validate:"omitempty,dive,oneof=datasheet manual specification"`
	ProductFamilies []string `json:"product_families,omitempty"`
	ProductModels   []string `json:"product_models,omitempty"`
	ChunkTypes      []string `json:"chunk_types,omitempty" validate:"omitempty,dive,oneof=text table"`
}

func (f *DocumentFilter) toSearchFilters() *storage.SearchFilters {
	if f == nil {
		return nil
	}
	return &storage.SearchFilters{
		DocumentIDs:     f.DocumentIDs,
		DocumentTypes:   f.DocumentTypes,
		ProductFamilies: f.ProductFamilies,
		ProductModels:   f.ProductModels,
		ChunkTypes:      f.ChunkTypes,
	}
}

// QueryRequest is a question for the RAG pipeline
type QueryRequest struct {
	Question       string          `json:"question" validate:"required,max=1000"`
	UserRole       types.UserRole  `json:"user_role" validate:"omitempty,oneof=engineer quality sales support"`
	DocumentFilter *DocumentFilter `json:"document_filter,omitempty"`
	TopK           int             `json:"top_k" validate:"omitempty,min=1,max=20"`
}

// Source is a retrieved chunk cited by an answer
type Source struct {
	ChunkID        int64   `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	DocumentName   string  `json:"document_name"`
	PageNumber     int     `json:"page_number,omitempty"`
	Section        string  `json:"section,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentPreview string  `json:"content_preview"`

	content string
}

// QueryResponse is an answer with its sources
type QueryResponse struct {
	QueryID     string   `json:"query_id,omitempty"`
	Answer      string   `json:"answer"`
	Confidence  float64  `json:"confidence"`
	Sources     []Source `json:"sources"`
	QueryTimeMS int64    `json:"query_time_ms"`
	ModelUsed   string   `json:"model_used"`
}

// BatchResponse holds batch answers in request order
type BatchResponse struct {
	Results     []*QueryResponse `json:"results"`
	TotalTimeMS int64            `json:"total_time_ms"`
}

// Statistics summarizes query activity
type Statistics struct {
	TotalQueries         int            `json:"total_queries"`
	AvgResponseTimeMS    float64        `json:"avg_response_time_ms"`
	AvgConfidence        float64        `json:"avg_confidence"`
	AvgRating            float64        `json:"avg_rating"`
	RatedQueries         int            `json:"rated_queries"`
	PopularQueries       []string       `json:"popular_queries"`
	UserRoleDistribution map[string]int `json:"user_role_distribution"`
	DocumentsByType      map[string]int `json:"documents_by_type"`
}

// Retriever runs hybrid searches
type Retriever interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
}

// Config holds answer generation settings
type Config struct {
	TopK              int
	Temperature       float64
	MaxTokens         int
	MaxContextLength  int
	PromptLanguage    string
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

// Service answers questions over the indexed datasheets
type Service struct {
	retriever Retriever
	storage   storage.Storage
	generator llm.Generator
	embedder  embedder.Embedder
	web       WebSearcher
	quality   *quality.Validator
	validate  *validator.Validate
	config    Config
	logger    *zap.Logger
}

// Option configures optional Service collaborators
type Option func(*Service)

// WithEmbedder enables the database source of multi-source queries
func WithEmbedder(e embedder.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithWebSearcher enables the web source of multi-source queries
func WithWebSearcher(w WebSearcher) Option {
	return func(s *Service) { s.web = w }
}

// NewService creates a Service. Zero config fields take the defaults.
func NewService(retriever Retriever, store storage.Storage, generator llm.Generator, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = llm.DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.DefaultMaxTokens
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	cfg.PromptLanguage = normalizeLanguage(cfg.PromptLanguage)
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultRetrievalTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	s := &Service{
		retriever: retriever,
		storage:   store,
		generator: generator,
		quality:   quality.NewValidator(),
		validate:  validate,
		config:    cfg,
		logger:    logger.Named("rag"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the generator's model name
func (s *Service) Model() string {
	return s.generator.Model()
}

// Validator returns the answer quality validator
func (s *Service) Validator() *quality.Validator {
	return s.quality
}

// Validate trims the question, applies defaults and checks the request
func (s *Service) Validate(req *QueryRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if err := s.check(req); err != nil {
		return err
	}

	if req.UserRole == "" {
		req.UserRole = types.RoleEngineer
	}
	if req.TopK == 0 {
		req.TopK = s.config.TopK
	}
	return nil
}

// check runs the struct validation and wraps failures in ErrInvalidRequest
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

// retrieve runs the role-enhanced query through the hybrid searcher
func (s *Service) retrieve(ctx context.Context, req QueryRequest) ([]types.SearchResult, error) {
	enhanced := enhanceQuery(req.Question, req.UserRole)
	if len([]rune(enhanced)) > searcher.MaxQueryLength {
		enhanced = req.Question
	}
	s.logger.Debug("retrieving",
		zap.String("question", req.Question),
		zap.String("enhanced", enhanced),
		zap.String("role", string(req.UserRole)))

	rctx, cancel := context.WithTimeout(ctx, s.config.RetrievalTimeout)
	defer cancel()

	resp, err := s.retriever.Search(rctx, searcher.SearchRequest{
		Query:    enhanced,
		Limit:    req.TopK,
		Filters:  req.DocumentFilter.toSearchFilters(),
		UseCache: true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrRetrievalTimeout, s.config.RetrievalTimeout)
		}
		if errors.Is(err, searcher.ErrInvalidRequest) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	return resp.Results, nil
}

func buildSources(results []types.SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		src := Source{
			ChunkID:        r.ChunkID,
			PageNumber:     r.PageNumber,
			Section:        r.Section,
			RelevanceScore: r.RelevanceScore,
			ContentPreview: preview(r.Content),
			content:        r.Content,
		}
		if r.Document != nil {
			src.DocumentID = r.Document.ID
			src.DocumentName = r.Document.Filename
		}
		sources = append(sources, src)
	}
	return sources
}

func qualitySources(sources []Source) []quality.Source {
	out := make([]quality.Source, len(sources))
	for i, src := range sources {
		out[i] = quality.Source{Content: src.content}
	}
	return out
}

func (s *Service) generationOptions() llm.Options {
	opts := llm.DefaultOptions()
	opts.Temperature = s.config.Temperature
	opts.MaxTokens = s.config.MaxTokens
	return opts
}

func (s *Service) generationError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrGenerationTimeout, s.config.GenerationTimeout)
	}
	return fmt.Errorf("generation failed: %w", err)
}

// roleLabel keeps unvalidated roles out of metric labels
func roleLabel(role types.UserRole) string {
	parsed, err := types.ParseUserRole(string(role))
	if err != nil {
		return "invalid"
	}
	return string(parsed)
}

// Query answers one question
func (s *Service) Query(ctx context.Context, req QueryRequest) (resp *QueryResponse, err error) {
	start := time.Now()
	defer func() {
		role := roleLabel(req.UserRole)
		metrics.QueriesTotal.WithLabelValues(role, metrics.Status(err)).Inc()
		metrics.QueryDuration.WithLabelValues(role).Observe(time.Since(start).Seconds())
	}()

	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	results, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		resp = &QueryResponse{
			Answer:      NotFoundAnswer,
			Sources:     []Source{},
			QueryTimeMS: time.Since(start).Milliseconds(),
			ModelUsed:   ModelNone,
		}
		s.logQuery(ctx, req, resp)
		return resp, nil
	}

	sources := buildSources(results)
	prompt := buildPrompt(s.config.PromptLanguage, req.UserRole, req.Question,
		buildContext(results, s.config.PromptLanguage, s.config.MaxContextLength))

	gctx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
	answer, err := s.generator.Generate(gctx, prompt, s.generationOptions())
	cancel()
	if err != nil {
		return nil, s.generationError(ctx, err)
	}

	answer, confidence := s.assess(req.Question, answer, calculateConfidence(results, answer), qualitySources(sources))

	resp = &QueryResponse{
		Answer:      answer,
		Confidence:  confidence,
		Sources:     sources,
		QueryTimeMS: time.Since(start).Milliseconds(),
		ModelUsed:   s.generator.Model(),
	}
	s.logQuery(ctx, req, resp)

	s.logger.Info("query answered",
		zap.String("query_id", resp.QueryID),
		zap.String("role", string(req.UserRole)),
		zap.Int("sources", len(sources)),
		zap.Float64("confidence", confidence),
		zap.Int64("query_time_ms", resp.QueryTimeMS))
	return resp, nil
}

// assess scores the answer and swaps in FallbackAnswer when quality is too low
func (s *Service) assess(question, answer string, confidence float64, sources []quality.Source) (string, float64) {
	check := s.quality.Validate(question, answer, sources, confidence)
	s.logger.Debug("answer validated",
		zap.Float64("quality_score", check.QualityScore),
		zap.Bool("valid", check.IsValid),
		zap.Strings("issues", check.Issues))

	if !check.IsValid || check.QualityScore < MinQualityScore {
		s.logger.Warn("answer failed quality check, using fallback",
			zap.Float64("quality_score", check.QualityScore),
			zap.Strings("issues", check.Issues))
		return FallbackAnswer, FallbackConfidence
	}
	return answer, round3(check.ConfidenceAdjusted)
}

// logQuery stores the query log and sets resp.QueryID. Failures are only logged.
func (s *Service) logQuery(ctx context.Context, req QueryRequest, resp *QueryResponse) {
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

// storeLog assigns an id and stores entry. It returns "" when the write failed.
func (s *Service) storeLog(ctx context.Context, entry *storage.QueryLog) string {
	entry.ID = uuid.NewString()
	if err := s.storage.LogQuery(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to store query log", zap.Error(err))
		return ""
	}
	return entry.ID
}

// QueryBatch answers up to MaxBatchQueries questions concurrently.
// Results keep request order and a failed item becomes an error answer.
func (s *Service) QueryBatch(ctx context.Context, reqs []QueryRequest) (*BatchResponse, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no queries", ErrInvalidRequest)
	}
	if len(reqs) > MaxBatchQueries {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(reqs), MaxBatchQueries)
	}

	start := time.Now()
	results := make([]*QueryResponse, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(BatchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			itemStart := time.Now()
			resp, err := s.Query(gctx, req)
			if err != nil {
				s.logger.Warn("batch item failed", zap.Int("index", i), zap.Error(err))
				resp = &QueryResponse{
					Answer:      ErrorAnswer(err),
					Sources:     []Source{},
					QueryTimeMS: time.Since(itemStart).Milliseconds(),
					ModelUsed:   ModelError,
				}
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	return &BatchResponse{
		Results:     results,
		TotalTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// ErrorAnswer turns a query failure into a user-facing message
func ErrorAnswer(err error) string {
	const prefix = "질의 처리 중 오류가 발생했습니다. "
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return prefix + "요청 형식이 올바르지 않습니다: " + err.Error()
	case errors.Is(err, ErrRetrievalTimeout), errors.Is(err, ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		return prefix + "응답 시간이 초과되었습니다. 더 구체적인 질문으로 다시 시도해주세요."
	case errors.Is(err, llm.ErrUnavailable):
		return prefix + "서비스 연결에 문제가 있습니다. 잠시 후 다시 시도해주세요."
	default:
		return prefix + "관리자에게 문의하거나 잠시 후 다시 시도해주세요."
	}
}

// StreamStart describes a stream before the first token
type StreamStart struct {
	Sources   []Source `json:"sources"`
	ModelUsed string   `json:"model_used"`
}

// StreamHandler receives stream events. Start is called once, then Token for every token.
type StreamHandler struct {
	Start func(StreamStart) error
	Token llm.TokenFunc
}

// QueryStream retrieves context and streams the answer. The returned response
// carries the full answer, confidence and query id once streaming has finished.
// Tokens are already delivered, so a low quality answer is only reflected in the confidence.
func (s *Service) QueryStream(ctx context.Context, req QueryRequest, h StreamHandler) (resp *QueryResponse, err error) {
	start := time.Now()
	defer func() {
		role := roleLabel(req.UserRole)
		metrics.QueriesTotal.WithLabelValues(role, metrics.Status(err)).Inc()
		metrics.QueryDuration.WithLabelValues(role).Observe(time.Since(start).Seconds())
	}()

	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	results, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	sources := buildSources(results)
	model := s.generator.Model()
	if len(results) == 0 {
		model = ModelNone
	}
	if h.Start != nil {
		if err := h.Start(StreamStart{Sources: sources, ModelUsed: model}); err != nil {
			return nil, err
		}
	}

	if len(results) == 0 {
		if err := h.Token(NotFoundAnswer); err != nil {
			return nil, err
		}
		resp = &QueryResponse{
			Answer:      NotFoundAnswer,
			Sources:     sources,
			QueryTimeMS: time.Since(start).Milliseconds(),
			ModelUsed:   ModelNone,
		}
		s.logQuery(ctx, req, resp)
		return resp, nil
	}

	prompt := buildPrompt(s.config.PromptLanguage, req.UserRole, req.Question,
		buildContext(results, s.config.PromptLanguage, s.config.MaxContextLength))

	var answer strings.Builder
	gctx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
	err = s.generator.Stream(gctx, prompt, s.generationOptions(), func(token string) error {
		answer.WriteString(token)
		return h.Token(token)
	})
	cancel()
	if err != nil {
		return nil, s.generationError(ctx, err)
	}

	text := strings.TrimSpace(answer.String())
	confidence := calculateConfidence(results, text)
	check := s.quality.Validate(req.Question, text, qualitySources(sources), confidence)
	confidence = round3(check.ConfidenceAdjusted)
	if !check.IsValid || check.QualityScore < MinQualityScore {
		confidence = FallbackConfidence
	}

	resp = &QueryResponse{
		Answer:      text,
		Confidence:  confidence,
		Sources:     sources,
		QueryTimeMS: time.Since(start).Milliseconds(),
		ModelUsed:   model,
	}
	s.logQuery(ctx, req, resp)
	return resp, nil
}

// PopularQueries returns the most frequently asked questions
func (s *Service) PopularQueries(ctx context.Context, limit int) ([]storage.PopularQuery, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	if limit > MaxPopularLimit {
		limit = MaxPopularLimit
	}
	return s.storage.PopularQueries(ctx, limit)
}

// Statistics aggregates the query log and document counts
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	qs, err := s.storage.QueryStats(ctx)
	if err != nil {
		return nil, err
	}
	byType, err := s.storage.CountDocumentsByType(ctx)
	if err != nil {
		return nil, err
	}
	popular, err := s.storage.PopularQueries(ctx, 5)
	if err != nil {
		return nil, err
	}

	questions := make([]string, len(popular))
	for i, p := range popular {
		questions[i] = p.Question
	}

	return &Statistics{
		TotalQueries:         qs.TotalQueries,
		AvgResponseTimeMS:    qs.AvgResponseTimeMS,
		AvgConfidence:        qs.AvgConfidence,
		AvgRating:            qs.AvgRating,
		RatedQueries:         qs.RatedQueries,
		PopularQueries:       questions,
		UserRoleDistribution: qs.RoleDistribution,
		DocumentsByType:      byType,
	}, nil
}

// Feedback stores a 1..5 rating for a logged query
func (s *Service) Feedback(ctx context.Context, queryID string, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	if err := s.storage.SetQueryRating(ctx, queryID, rating); err != nil {
		return fmt.Errorf("query %s: %w", queryID, err)
	}
	s.logger.Info("feedback stored", zap.String("query_id", queryID), zap.Int("rating", rating))
	return nil
}

// selfTestAsker runs suite questions as an engineer with the default top k
type selfTestAsker struct {
	s *Service
}

func (a selfTestAsker) Ask(ctx context.Context, question string) (*quality.Answer, error) {
	resp, err := a.s.Query(ctx, QueryRequest{Question: question, UserRole: types.RoleEngineer, TopK: DefaultTopK})
	if err != nil {
		return nil, err
	}
	sources := make([]quality.Source, len(resp.Sources))
	for i, src := range resp.Sources {
		sources[i] = quality.Source{Content: src.content}
	}
	return &quality.Answer{Text: resp.Answer, Sources: sources, Confidence: resp.Confidence}, nil
}

// Asker returns a quality.Asker backed by Query
func (s *Service) Asker() quality.Asker {
	return selfTestAsker{s: s}
}
