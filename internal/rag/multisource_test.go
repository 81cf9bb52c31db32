package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/llm/llmtest"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/pkg/types"
)

const webContent = "JEDEC lists 1.1V VDD as the DDR5 operating voltage for all speed bins."

// fakeWeb returns canned hits and records queries
type fakeWeb struct {
	hits    []WebResult
	err     error
	queries []string
}

func (w *fakeWeb) SearchWeb(_ context.Context, query string, limit int) ([]WebResult, error) {
	w.queries = append(w.queries, query)
	if w.err != nil {
		return nil, w.err
	}
	if len(w.hits) > limit {
		return w.hits[:limit], nil
	}
	return w.hits, nil
}

func localEmbedder(t *testing.T) embedder.Embedder {
	t.Helper()
	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
	require.NoError(t, err)
	return emb
}

// seedDatabase stores the seeded documents as completed plus one confident answer
func seedDatabase(t *testing.T, store *storage.SQLiteStorage, emb embedder.Embedder) {
	t.Helper()
	ctx := context.Background()
	seedStore(t, store, emb)
	for _, id := range []string{"ddr5", "ssd"} {
		require.NoError(t, store.UpdateDocumentStatus(ctx, id, types.StatusCompleted, ""))
	}
	require.NoError(t, store.ReplaceSections(ctx, "ddr5", []*storage.Section{{DocumentID: "ddr5", Title: "Electrical Characteristics", PageNumber: 3}}))
	require.NoError(t, store.LogQuery(ctx, &storage.QueryLog{
		ID:         "past",
		Question:   "What is the DDR5 refresh interval?",
		UserRole:   "engineer",
		Answer:     "• tREFI: 3.9us at normal temperature",
		Confidence: 0.9,
		ModelUsed:  "fake-model",
	}))
}

func TestValidateMultiSource(t *testing.T) {
	s := NewService(nil, nil, llmtest.New(""), Config{}, nil)

	req := MultiSourceRequest{
		Question:       "  DDR5 전압은?  ",
		DataSources:    []DataSource{SourceDatabase, SourceDocuments, SourceDatabase},
		WebSearchQuery: " ddr5 voltage ",
	}
	require.NoError(t, s.ValidateMultiSource(&req))
	assert.Equal(t, "DDR5 전압은?", req.Question)
	assert.Equal(t, "ddr5 voltage", req.WebSearchQuery)
	assert.Equal(t, types.RoleEngineer, req.UserRole)
	assert.Equal(t, DefaultTopKPerSource, req.TopKPerSource)
	assert.Equal(t, []DataSource{SourceDatabase, SourceDocuments}, req.DataSources)
	assert.Equal(t, StrategyFast, req.Strategy)

	req = MultiSourceRequest{Question: "q"}
	require.NoError(t, s.ValidateMultiSource(&req))
	assert.Equal(t, []DataSource{SourceDocuments}, req.DataSources)

	req = MultiSourceRequest{Question: "q", Strategy: StrategyDocumentsFirst}
	require.NoError(t, s.ValidateMultiSource(&req))
	assert.Equal(t, StrategyDocumentsFirst, req.Strategy)

	testCases := []struct {
		name  string
		req   MultiSourceRequest
		field string
	}{
		{name: "empty question", req: MultiSourceRequest{}, field: "question"},
		{name: "unknown source", req: MultiSourceRequest{Question: "q", DataSources: []DataSource{"ftp"}}, field: "data_sources"},
		{name: "top k too large", req: MultiSourceRequest{Question: "q", TopKPerSource: MaxTopKPerSource + 1}, field: "top_k_per_source"},
		{name: "unknown strategy", req: MultiSourceRequest{Question: "q", Strategy: "greedy"}, field: "search_strategy"},
		{name: "weight above one", req: MultiSourceRequest{Question: "q", SourceWeights: &SourceWeights{Documents: 1.5}}, field: "documents"},
		{name: "threshold above one", req: MultiSourceRequest{Question: "q", MinRelevance: 2}, field: "min_relevance_threshold"},
		{name: "unknown role", req: MultiSourceRequest{Question: "q", UserRole: "admin"}, field: "user_role"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ValidateMultiSource(&tc.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestChooseStrategy(t *testing.T) {
	testCases := []struct {
		name    string
		sources []DataSource
		topK    int
		want    Strategy
	}{
		{"single source", []DataSource{SourceDatabase}, 10, StrategyFast},
		{"web included", []DataSource{SourceDocuments, SourceWeb}, 3, StrategyComprehensive},
		{"small top k", []DataSource{SourceDocuments, SourceDatabase}, 3, StrategyFast},
		{"large top k", []DataSource{SourceDocuments, SourceDatabase}, 5, StrategyBalanced},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, chooseStrategy(tc.sources, tc.topK))
		})
	}
}

func TestMultiSourceQuery_AllSources(t *testing.T) {
	store := newStore(t)
	emb := localEmbedder(t)
	seedDatabase(t, store, emb)

	retriever := &stubRetriever{results: voltageResults()}
	web := &fakeWeb{hits: []WebResult{{Title: "DDR5 overview", Content: webContent, URL: "https://example.com/ddr5", Source: "example", Score: 0.7}}}
	gen := llmtest.New(voltageAnswer)
	s := NewService(retriever, store, gen, Config{}, nil, WithEmbedder(emb), WithWebSearcher(web))

	resp, err := s.MultiSourceQuery(context.Background(), MultiSourceRequest{
		Question:        "DDR5 operating voltage?",
		DataSources:     []DataSource{SourceDocuments, SourceDatabase, SourceWeb},
		EnableWebSearch: true,
		WebSearchQuery:  "DDR5 VDD JEDEC",
	})
	require.NoError(t, err)

	assert.Equal(t, voltageAnswer, resp.Answer)
	assert.Equal(t, "fake-model", resp.ModelUsed)
	assert.NotEmpty(t, resp.QueryID)
	assert.Greater(t, resp.Confidence, 0.0)
	assert.Equal(t, StrategyComprehensive, resp.SearchStrategy)
	assert.Equal(t, 3, resp.TotalSourcesSearched)

	// Two documents and the confident past answer make up the database source
	assert.Equal(t, 1, resp.SourcesByType[SourceDocuments])
	assert.Equal(t, 3, resp.SourcesByType[SourceDatabase])
	assert.Equal(t, 1, resp.SourcesByType[SourceWeb])
	require.Len(t, resp.Sources, 5)
	for i := 1; i < len(resp.Sources); i++ {
		assert.GreaterOrEqual(t, resp.Sources[i-1].RelevanceScore, resp.Sources[i].RelevanceScore)
	}

	// Comprehensive doubles the per-source limit
	require.Len(t, retriever.requests, 1)
	assert.Equal(t, 2*DefaultTopKPerSource, retriever.requests[0].Limit)
	assert.Equal(t, []string{"DDR5 VDD JEDEC"}, web.queries)

	prompt := gen.Prompts()[0]
	assert.Contains(t, prompt, "[소스 1]")
	assert.Contains(t, prompt, voltageChunk)
	assert.Contains(t, prompt, webContent)
	assert.Contains(t, prompt, "웹: example, https://example.com/ddr5")
	assert.Contains(t, prompt, "3.9us at normal temperature")
	assert.Contains(t, prompt, "Electrical Characteristics")

	stats, err := store.QueryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalQueries)
}

func TestMultiSourceQuery_FailedSourceIsReported(t *testing.T) {
	store := newStore(t)
	gen := llmtest.New(voltageAnswer)
	// No embedder, so the database source cannot run
	s := NewService(&stubRetriever{results: voltageResults()}, store, gen, Config{}, nil)
	req := MultiSourceRequest{
		Question:    "DDR5 operating voltage?",
		DataSources: []DataSource{SourceDocuments, SourceDatabase},
	}

	search, err := s.SearchSources(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, search.SourceResults, 2)
	assert.Equal(t, SourceStatusSuccess, search.SourceResults[0].Status)
	assert.Equal(t, 1, search.SourceResults[0].TotalFound)
	assert.Equal(t, SourceStatusFailed, search.SourceResults[1].Status)
	assert.Contains(t, search.SourceResults[1].ErrorMessage, errNoEmbedder.Error())
	assert.Empty(t, search.SourceResults[1].Results)
	assert.Equal(t, 1, search.SuccessfulSources)
	assert.Equal(t, 1, search.FailedSources)
	assert.Empty(t, gen.Prompts())

	resp, err := s.MultiSourceQuery(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, voltageAnswer, resp.Answer)
	assert.Equal(t, 2, resp.TotalSourcesSearched)
	assert.Equal(t, map[DataSource]int{SourceDocuments: 1}, resp.SourcesByType)
}

func TestMultiSourceQuery_WebDisabled(t *testing.T) {
	web := &fakeWeb{hits: []WebResult{{Content: webContent, Score: 0.9}}}

	testCases := []struct {
		name   string
		opts   []Option
		enable bool
	}{
		{name: "not enabled on request", opts: []Option{WithWebSearcher(web)}},
		{name: "no web searcher", enable: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			s := NewService(&stubRetriever{results: voltageResults()}, store, llmtest.New(voltageAnswer), Config{}, nil, tc.opts...)

			search, err := s.SearchSources(context.Background(), MultiSourceRequest{
				Question:        "DDR5 voltage",
				DataSources:     []DataSource{SourceDocuments, SourceWeb},
				EnableWebSearch: tc.enable,
			})
			require.NoError(t, err)
			require.Len(t, search.SourceResults, 2)
			assert.Equal(t, SourceStatusDisabled, search.SourceResults[1].Status)
			assert.Equal(t, 1, search.SuccessfulSources)
			assert.Equal(t, 0, search.FailedSources)
		})
	}
	assert.Empty(t, web.queries)
}

func TestMultiSourceQuery_WebFailure(t *testing.T) {
	web := &fakeWeb{err: errors.New("quota exceeded")}
	s := NewService(&stubRetriever{results: voltageResults()}, newStore(t), llmtest.New(voltageAnswer), Config{}, nil, WithWebSearcher(web))

	search, err := s.SearchSources(context.Background(), MultiSourceRequest{
		Question:        "DDR5 voltage",
		DataSources:     []DataSource{SourceWeb},
		EnableWebSearch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceStatusFailed, search.SourceResults[0].Status)
	assert.Contains(t, search.SourceResults[0].ErrorMessage, "quota exceeded")
	assert.Equal(t, []string{"DDR5 voltage"}, web.queries)
}

func TestMultiSourceQuery_NotFound(t *testing.T) {
	gen := llmtest.New(voltageAnswer)
	s := NewService(&stubRetriever{}, newStore(t), gen, Config{}, nil)

	resp, err := s.MultiSourceQuery(context.Background(), MultiSourceRequest{Question: "DDR5 voltage"})
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, resp.Answer)
	assert.Equal(t, ModelNone, resp.ModelUsed)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.QueryID)
	assert.Empty(t, gen.Prompts())
}

func TestMultiSourceQuery_DocumentsFirst(t *testing.T) {
	store := newStore(t)
	emb := localEmbedder(t)
	seedDatabase(t, store, emb)
	s := NewService(&stubRetriever{results: voltageResults()}, store, llmtest.New(voltageAnswer), Config{}, nil, WithEmbedder(emb))

	// One document hit satisfies a top k of one, so the database is skipped
	search, err := s.SearchSources(context.Background(), MultiSourceRequest{
		Question:      "DDR5 voltage",
		DataSources:   []DataSource{SourceDatabase, SourceDocuments},
		TopKPerSource: 1,
		Strategy:      StrategyDocumentsFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceStatusSkipped, search.SourceResults[0].Status)
	assert.Equal(t, SourceStatusSuccess, search.SourceResults[1].Status)

	// Too few document hits fall through to the database
	search, err = s.SearchSources(context.Background(), MultiSourceRequest{
		Question:      "DDR5 voltage",
		DataSources:   []DataSource{SourceDatabase, SourceDocuments},
		TopKPerSource: 3,
		Strategy:      StrategyDocumentsFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceStatusSuccess, search.SourceResults[0].Status)
	assert.Equal(t, 3, search.SourceResults[0].TotalFound)
	assert.Equal(t, 2, search.SuccessfulSources)
}

func TestSearchDatabase_Filter(t *testing.T) {
	store := newStore(t)
	emb := localEmbedder(t)
	seedDatabase(t, store, emb)
	require.NoError(t, store.CreateDocument(context.Background(), &storage.Document{
		ID: "pending", Filename: "pending.pdf", OriginalName: "pending.pdf", FilePath: "/u/pending.pdf", FileHash: "c",
		ProductFamily: "SSD", DocumentType: types.DocDatasheet,
	}))
	s := NewService(&stubRetriever{}, store, llmtest.New(""), Config{}, nil, WithEmbedder(emb))

	// Only completed documents of the filtered family, and no query history
	search, err := s.SearchSources(context.Background(), MultiSourceRequest{
		Question:       "sequential read speed",
		DataSources:    []DataSource{SourceDatabase},
		DocumentFilter: &DocumentFilter{ProductFamilies: []string{"SSD"}},
		TopKPerSource:  10,
	})
	require.NoError(t, err)
	results := search.SourceResults[0].Results
	require.Len(t, results, 1)
	assert.Equal(t, "document_ssd", results[0].SourceID)
	assert.Equal(t, "ssd.pdf", results[0].DocumentName)
	assert.Equal(t, "document", results[0].Metadata["record_type"])
	assert.Contains(t, results[0].Content, "파일명: ssd")
	assert.Contains(t, results[0].Content, "제품군: SSD")
	assert.GreaterOrEqual(t, results[0].RelevanceScore, 0.0)
	assert.LessOrEqual(t, results[0].RelevanceScore, 1.0)
}

func TestCombineResults(t *testing.T) {
	searched := []SourceSearchResult{
		{SourceType: SourceDocuments, Status: SourceStatusSuccess, Results: []MultiSourceResult{
			{SourceType: SourceDocuments, SourceID: "chunk_1", RelevanceScore: 0.8},
		}},
		{SourceType: SourceDatabase, Status: SourceStatusSuccess, Results: []MultiSourceResult{
			{SourceType: SourceDatabase, SourceID: "document_a", RelevanceScore: 0.9},
		}},
		{SourceType: SourceWeb, Status: SourceStatusSuccess, Results: []MultiSourceResult{
			{SourceType: SourceWeb, SourceID: "web_1", RelevanceScore: 0.9},
		}},
		{SourceType: SourceDatabase, Status: SourceStatusFailed, Results: []MultiSourceResult{
			{SourceType: SourceDatabase, SourceID: "ignored", RelevanceScore: 1},
		}},
	}

	ids := func(results []MultiSourceResult) []string {
		out := make([]string, len(results))
		for i, r := range results {
			out[i] = r.SourceID
		}
		return out
	}

	unweighted := combineResults(searched, nil, 0, MaxCombinedSources)
	assert.Equal(t, []string{"document_a", "web_1", "chunk_1"}, ids(unweighted))

	weights := DefaultSourceWeights()
	weighted := combineResults(searched, &weights, 0, MaxCombinedSources)
	assert.Equal(t, []string{"chunk_1", "document_a", "web_1"}, ids(weighted))
	assert.InDelta(t, 0.48, weighted[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.27, weighted[1].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.09, weighted[2].RelevanceScore, 1e-9)

	filtered := combineResults(searched, &weights, DefaultMinRelevance, MaxCombinedSources)
	assert.Equal(t, []string{"chunk_1"}, ids(filtered))

	assert.Len(t, combineResults(searched, nil, 0, 2), 2)
	assert.Empty(t, combineResults(nil, nil, 0, MaxCombinedSources))

	// The input scores are left untouched
	assert.Equal(t, 0.8, searched[0].Results[0].RelevanceScore)
}

func TestBuildMultiSourceContext(t *testing.T) {
	results := []MultiSourceResult{
		{SourceType: SourceDocuments, DocumentName: "ddr5.pdf", PageNumber: 3, text: voltageChunk},
		{SourceType: SourceDatabase, DocumentName: "ssd.pdf", Metadata: map[string]any{"record_type": "document"}, text: "파일명: ssd"},
		{SourceType: SourceWeb, WebSource: "example", URL: "https://example.com", text: webContent},
	}

	ko := buildMultiSourceContext(results, LanguageKorean, 0)
	assert.Contains(t, ko, "[소스 1] (문서: ddr5.pdf, 페이지 3)\n"+voltageChunk)
	assert.Contains(t, ko, "[소스 2] (DB: document, ssd.pdf)")
	assert.Contains(t, ko, "[소스 3] (웹: example, https://example.com)")

	en := buildMultiSourceContext(results, LanguageEnglish, 0)
	assert.Contains(t, en, "[Source 1] (Document: ddr5.pdf, Page 3)")
	assert.Contains(t, en, "[Source 3] (Web: example, https://example.com)")

	short := buildMultiSourceContext(results, LanguageEnglish, 20)
	assert.True(t, strings.HasSuffix(short, labels[LanguageEnglish].truncated))
}
