package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/datasheet-rag/internal/embedder"
	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/llm/llmtest"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/internal/testutil"
	"github.com/dshills/datasheet-rag/internal/vectorindex"
)

const testAnswer = "• Operating voltage VDD is 1.1V typical"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
	require.NoError(t, err)

	vectors := vectorindex.NewManager(store, vectorindex.Config{}, nil)
	srch := searcher.NewSearcher(store, emb, vectors, searcher.Config{}, nil)

	idx, err := indexer.New(indexer.Deps{
		Storage:     store,
		Embedder:    emb,
		Vectors:     vectors,
		Invalidator: srch,
	}, indexer.Config{UploadDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	gen := llmtest.New(testAnswer)

	s, err := NewServer(Deps{
		Storage:   store,
		Indexer:   idx,
		Searcher:  srch,
		RAG:       rag.NewService(srch, store, gen, rag.Config{}, nil),
		Vectors:   vectors,
		Generator: gen,
	}, "test")
	require.NoError(t, err)
	return s
}

func datasheetPDF(model string) []byte {
	return testutil.BuildPDF(model+" Datasheet",
		testutil.TextPage(
			"1. Overview",
			model+" is a DDR5 registered DIMM for servers.",
			"It supports on-die ECC and a power management IC.",
		),
		testutil.TextPage(
			"2. Electrical Characteristics",
			"Operating voltage VDD is 1.1V typical.",
			"Refresh interval tREFI is 3.9us.",
		),
	)
}

func callRequest(args interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// resultJSON decodes the text content of a tool result
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out), text.Text)
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected *MCPError, got %T", err)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
	return mcpErr
}

// ingest writes a datasheet to disk and ingests it through the tool
func ingest(t *testing.T, s *Server, model string) string {
	t.Helper()
	path := testutil.WritePDF(t, model+".pdf", datasheetPDF(model))

	result, err := s.handleIngestDocument(context.Background(), callRequest(map[string]interface{}{
		"path":           path,
		"document_type":  "datasheet",
		"product_family": "DDR5",
		"product_model":  model,
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	require.Equal(t, true, out["ingested"], out)
	id, _ := out["document_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Deps{}, "1.0.0")
	assert.Error(t, err)

	s := newTestServer(t)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.logger)
}

func TestToolSchemas(t *testing.T) {
	testCases := []struct {
		tool     mcp.Tool
		name     string
		required []string
	}{
		{ingestDocumentTool(), "ingest_document", []string{"path"}},
		{searchDocumentsTool(), "search_documents", []string{"query"}},
		{askQuestionTool(), "ask_question", []string{"question"}},
		{getStatusTool(), "get_status", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.tool.Name)
			assert.NotEmpty(t, tc.tool.Description)
			assert.Equal(t, "object", tc.tool.InputSchema.Type)
			assert.Equal(t, tc.required, tc.tool.InputSchema.Required)
			for _, key := range tc.required {
				assert.Contains(t, tc.tool.InputSchema.Properties, key)
			}
		})
	}
}

func TestHandleIngestDocument(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := testutil.WritePDF(t, "m321.pdf", datasheetPDF("M321R8GA0BB0"))

	result, err := s.handleIngestDocument(ctx, callRequest(map[string]interface{}{
		"path":           path,
		"product_family": "DDR5",
		"product_model":  "M321R8GA0BB0",
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, true, out["ingested"])
	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, "m321.pdf", out["filename"])
	assert.NotEmpty(t, out["file_hash"])
	assert.Greater(t, out["chunks_created"], 0.0)
	assert.Equal(t, 2.0, out["page_count"])

	// Same bytes again are reported as a duplicate of the first document
	_, err = s.handleIngestDocument(ctx, callRequest(map[string]interface{}{"path": path}))
	mcpErr := requireMCPError(t, err, ErrorCodeDuplicateDocument)
	data, ok := mcpErr.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, out["document_id"], data["document_id"])
}

func TestHandleIngestDocument_Validation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	pdf := testutil.WritePDF(t, "brochure.pdf", datasheetPDF("X"))
	txt := testutil.WritePDF(t, "notes.txt", []byte("plain text"))

	testCases := []struct {
		name string
		args interface{}
		code int
	}{
		{"no arguments", nil, ErrorCodeInvalidParams},
		{"missing path", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"relative path", map[string]interface{}{"path": "docs/manual.pdf"}, ErrorCodeInvalidParams},
		{"missing file", map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing.pdf")}, ErrorCodeDocumentNotFound},
		{"directory", map[string]interface{}{"path": t.TempDir()}, ErrorCodeInvalidParams},
		{"not a pdf", map[string]interface{}{"path": txt}, ErrorCodeInvalidParams},
		{"bad document type", map[string]interface{}{"path": pdf, "document_type": "brochure"}, ErrorCodeInvalidParams},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.handleIngestDocument(ctx, callRequest(tc.args))
			requireMCPError(t, err, tc.code)
		})
	}
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	pdf := testutil.WritePDF(t, "Upper.PDF", []byte("%PDF-1.4"))

	_, err := validatePath("")
	assert.ErrorIs(t, err, ErrPathRequired)
	_, err = validatePath("relative.pdf")
	assert.ErrorIs(t, err, ErrPathNotAbsolute)
	_, err = validatePath(filepath.Join(dir, "none.pdf"))
	assert.ErrorIs(t, err, ErrPathNotFound)
	_, err = validatePath(dir)
	assert.ErrorIs(t, err, ErrIsDirectory)

	info, err := validatePath(pdf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.4")), info.Size())
}

func TestHandleSearchDocuments(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Nothing to search yet
	_, err := s.handleSearchDocuments(ctx, callRequest(map[string]interface{}{"query": "voltage"}))
	requireMCPError(t, err, ErrorCodeNotIndexed)

	docID := ingest(t, s, "M321R8GA0BB0")

	result, err := s.handleSearchDocuments(ctx, callRequest(map[string]interface{}{
		"query":       "Refresh interval tREFI",
		"limit":       float64(5),
		"search_mode": "keyword",
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, "keyword", out["search_mode"])
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	assert.Equal(t, docID, first["document_id"])
	assert.Equal(t, 1.0, first["rank"])
	assert.Contains(t, first["content"], "tREFI")

	// Hybrid search with a filter that matches nothing
	result, err = s.handleSearchDocuments(ctx, callRequest(map[string]interface{}{
		"query":   "operating voltage",
		"filters": map[string]interface{}{"product_families": []interface{}{"SSD"}},
	}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Empty(t, out["results"])
	assert.Equal(t, 0.0, out["total_results"])
}

func TestHandleSearchDocuments_Validation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		args interface{}
		code int
	}{
		{"no arguments", "not a map", ErrorCodeInvalidParams},
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"query": "   "}, ErrorCodeEmptyQuery},
		{"limit too small", map[string]interface{}{"query": "q", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"limit too large", map[string]interface{}{"query": "q", "limit": float64(101)}, ErrorCodeInvalidParams},
		{"bad mode", map[string]interface{}{"query": "q", "search_mode": "fuzzy"}, ErrorCodeInvalidParams},
		{"bad fusion", map[string]interface{}{"query": "q", "fusion": "max"}, ErrorCodeInvalidParams},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.handleSearchDocuments(ctx, callRequest(tc.args))
			requireMCPError(t, err, tc.code)
		})
	}
}

func TestHandleAskQuestion(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Before anything is indexed the service answers that nothing was found
	result, err := s.handleAskQuestion(ctx, callRequest(map[string]interface{}{"question": "DDR5 operating voltage"}))
	require.NoError(t, err)
	assert.Equal(t, rag.NotFoundAnswer, resultJSON(t, result)["answer"])

	docID := ingest(t, s, "M321R8GA0BB0")

	result, err = s.handleAskQuestion(ctx, callRequest(map[string]interface{}{
		"question":  "DDR5 operating voltage VDD",
		"user_role": "engineer",
		"top_k":     float64(3),
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, testAnswer, out["answer"])
	assert.Equal(t, "fake-model", out["model_used"])
	assert.NotEmpty(t, out["query_id"])
	sources, ok := out["sources"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, sources)
	assert.LessOrEqual(t, len(sources), 3)
	assert.Equal(t, docID, sources[0].(map[string]interface{})["document_id"])

	_, err = s.handleAskQuestion(ctx, callRequest(map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleAskQuestion(ctx, callRequest(map[string]interface{}{"question": "q", "user_role": "admin"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleAskQuestion(ctx, callRequest(map[string]interface{}{"question": "q", "top_k": float64(50)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Arguments are optional
	result, err := s.handleGetStatus(ctx, callRequest(nil))
	require.NoError(t, err)
	out := resultJSON(t, result)
	assert.Equal(t, false, out["indexed"])
	assert.NotEmpty(t, out["message"])

	docID := ingest(t, s, "M321R8GA0BB0")

	result, err = s.handleGetStatus(ctx, callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Equal(t, true, out["indexed"])
	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, 1.0, stats["documents_count"])
	assert.Greater(t, stats["chunks_count"], 0.0)
	health := out["health"].(map[string]interface{})
	assert.Equal(t, true, health["database_accessible"])
	llmStatus := out["llm"].(map[string]interface{})
	assert.Equal(t, "fake-model", llmStatus["model"])
	assert.Equal(t, true, llmStatus["available"])
	assert.Contains(t, out, "vector_index")

	result, err = s.handleGetStatus(ctx, callRequest(map[string]interface{}{"document_id": docID}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Equal(t, true, out["indexed"])
	assert.Greater(t, out["chunk_count"], 0.0)
	document := out["document"].(map[string]interface{})
	assert.Equal(t, "M321R8GA0BB0", document["product_model"])
	assert.Equal(t, "completed", document["status"])

	result, err = s.handleGetStatus(ctx, callRequest(map[string]interface{}{"document_id": "missing"}))
	require.NoError(t, err)
	out = resultJSON(t, result)
	assert.Equal(t, false, out["indexed"])
	assert.Equal(t, "missing", out["document_id"])
}

func TestHelpers(t *testing.T) {
	args := map[string]interface{}{
		"int":    5,
		"float":  float64(7),
		"string": "hybrid",
		"list":   []interface{}{"a", "", 3, "b"},
		"typed":  []string{"x"},
		"single": "DDR5",
	}

	assert.Equal(t, 5, getIntDefault(args, "int", 1))
	assert.Equal(t, 7, getIntDefault(args, "float", 1))
	assert.Equal(t, 1, getIntDefault(args, "missing", 1))
	assert.Equal(t, "hybrid", getStringDefault(args, "string", "x"))
	assert.Equal(t, "x", getStringDefault(args, "int", "x"))
	assert.Equal(t, []string{"a", "b"}, getStringSlice(args, "list"))
	assert.Equal(t, []string{"x"}, getStringSlice(args, "typed"))
	assert.Equal(t, []string{"DDR5"}, getStringSlice(args, "single"))
	assert.Nil(t, getStringSlice(args, "missing"))

	assert.Nil(t, parseFilters(args))
	assert.Nil(t, parseFilters(map[string]interface{}{"filters": map[string]interface{}{}}))
	f := parseFilters(map[string]interface{}{"filters": map[string]interface{}{"chunk_types": []interface{}{"table"}}})
	require.NotNil(t, f)
	assert.Equal(t, []string{"table"}, f.ChunkTypes)

	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "전압...", truncate("전압은요", 2))

	err := newMCPError(ErrorCodeEmptyQuery, "empty", nil)
	assert.Equal(t, "MCP error -32004: empty", err.Error())
}
