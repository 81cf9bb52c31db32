package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeDocumentNotFound   = -32001 // Specified path or document does not exist
	ErrorCodeIndexingInProgress = -32002 // The document is already being processed
	ErrorCodeNotIndexed         = -32003 // No documents have been indexed yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeDuplicateDocument  = -32005 // The file was ingested before
	ErrorCodeTimeout            = -32006 // Retrieval or generation timed out
)

// previewLength bounds the content returned per search hit
const previewLength = 500

// handleIngestDocument handles the ingest_document tool invocation
func (s *Server) handleIngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	info, err := validatePath(path)
	if err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodeDocumentNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotReadable.Error(),
		})
	}
	defer func() { _ = f.Close() }()

	meta := indexer.MetadataFromForm(func(key string) string {
		return getStringDefault(args, key, "")
	})

	// Run ingestion synchronously so the caller can search right away
	result, err := s.indexer.Ingest(ctx, indexer.UploadRequest{
		Filename: filepath.Base(path),
		Reader:   f,
		Size:     info.Size(),
		Meta:     meta,
	})
	if err != nil {
		return nil, ingestError(err)
	}

	response := map[string]interface{}{
		"ingested":    result.Status == types.StatusCompleted,
		"document_id": result.DocumentID,
		"status":      result.Status,
		"filename":    result.Filename,
		"file_hash":   result.FileHash,
		"file_size":   result.FileSize,
	}

	if status, err := s.indexer.Status(ctx, result.DocumentID); err == nil {
		response["chunks_created"] = status.ChunkCount
		response["page_count"] = status.Document.PageCount
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// ingestError maps indexer failures to MCP errors
func ingestError(err error) error {
	var dup *indexer.DuplicateError
	switch {
	case errors.As(err, &dup):
		return newMCPError(ErrorCodeDuplicateDocument, "document already ingested", map[string]interface{}{
			"document_id": dup.DocumentID,
		})
	case errors.Is(err, indexer.ErrAlreadyProcessing):
		return newMCPError(ErrorCodeIndexingInProgress, "document is already being processed", nil)
	case errors.Is(err, indexer.ErrUnsupportedFile),
		errors.Is(err, indexer.ErrFileTooLarge),
		errors.Is(err, indexer.ErrEmptyFile),
		errors.Is(err, types.ErrInvalidDocumentType):
		return newMCPError(ErrorCodeInvalidParams, "invalid document", map[string]interface{}{
			"reason": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	// Parse optional parameters
	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	searchMode := getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid))
	if searchMode != "hybrid" && searchMode != "vector" && searchMode != "keyword" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	fusion := getStringDefault(args, "fusion", "")
	if fusion != "" && fusion != string(searcher.FusionWeighted) && fusion != string(searcher.FusionRRF) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid fusion", map[string]interface{}{
			"param":   "fusion",
			"value":   fusion,
			"allowed": []string{"weighted", "rrf"},
		})
	}

	if err := s.requireIndexed(ctx); err != nil {
		return nil, err
	}

	filter := parseFilters(args)
	var filters *storage.SearchFilters
	if filter != nil {
		filters = &storage.SearchFilters{
			DocumentIDs:     filter.DocumentIDs,
			DocumentTypes:   filter.DocumentTypes,
			ProductFamilies: filter.ProductFamilies,
			ProductModels:   filter.ProductModels,
			ChunkTypes:      filter.ChunkTypes,
		}
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     searcher.SearchMode(searchMode),
		Fusion:   searcher.FusionMethod(fusion),
		Filters:  filters,
		UseCache: true,
	})
	if err != nil {
		if errors.Is(err, searcher.ErrInvalidRequest) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid search request", map[string]interface{}{
				"reason": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		hit := map[string]interface{}{
			"rank":            r.Rank,
			"chunk_id":        r.ChunkID,
			"relevance_score": r.RelevanceScore,
			"vector_score":    r.VectorScore,
			"keyword_score":   r.KeywordScore,
			"page_number":     r.PageNumber,
			"chunk_type":      r.ChunkType,
			"content":         truncate(r.Content, previewLength),
		}
		if r.Section != "" {
			hit["section"] = r.Section
		}
		if r.Document != nil {
			hit["document_id"] = r.Document.ID
			hit["document_name"] = r.Document.Filename
			hit["product_model"] = r.Document.ProductModel
		}
		results = append(results, hit)
	}

	response := map[string]interface{}{
		"query":          query,
		"results":        results,
		"total_results":  resp.TotalResults,
		"search_mode":    resp.SearchMode,
		"fusion":         resp.Fusion,
		"duration_ms":    resp.Duration.Milliseconds(),
		"cache_hit":      resp.CacheHit,
		"vector_results": resp.VectorResults,
		"text_results":   resp.TextResults,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAskQuestion handles the ask_question tool invocation
func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question, ok := args["question"].(string)
	if !ok || strings.TrimSpace(question) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	req := rag.QueryRequest{
		Question:       question,
		UserRole:       types.UserRole(getStringDefault(args, "user_role", "")),
		TopK:           getIntDefault(args, "top_k", 0),
		DocumentFilter: parseFilters(args),
	}

	resp, err := s.rag.Query(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrInvalidRequest):
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid question", map[string]interface{}{
				"reason": err.Error(),
			})
		case errors.Is(err, rag.ErrRetrievalTimeout), errors.Is(err, rag.ErrGenerationTimeout):
			return nil, newMCPError(ErrorCodeTimeout, err.Error(), nil)
		default:
			s.logger.Error("ask_question failed", zap.Error(err))
			return nil, newMCPError(ErrorCodeInternalError, "failed to answer question", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"query_id":      resp.QueryID,
		"answer":        resp.Answer,
		"confidence":    resp.Confidence,
		"sources":       resp.Sources,
		"model_used":    resp.ModelUsed,
		"query_time_ms": resp.QueryTimeMS,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// get_status takes no required parameters, so a missing arguments object is fine
	args, _ := request.Params.Arguments.(map[string]interface{})

	if id := getStringDefault(args, "document_id", ""); id != "" {
		return s.documentStatus(ctx, id)
	}

	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed": status.ChunksCount > 0,
		"statistics": map[string]interface{}{
			"documents_count":     status.DocumentsCount,
			"documents_by_status": status.DocumentsByStatus,
			"chunks_count":        status.ChunksCount,
			"embeddings_count":    status.EmbeddingsCount,
			"queries_count":       status.QueriesCount,
			"index_size_mb":       fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	if s.vectors != nil {
		response["vector_index"] = s.vectors.Stats()
	}
	if s.generator != nil {
		response["llm"] = map[string]interface{}{
			"model":     s.generator.Model(),
			"available": s.generator.Available(ctx),
		}
	}
	if status.ChunksCount == 0 {
		response["message"] = "No documents indexed. Use the ingest_document tool to add a PDF."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// documentStatus reports on a single document
func (s *Server) documentStatus(ctx context.Context, id string) (*mcp.CallToolResult, error) {
	status, err := s.indexer.Status(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed":     false,
			"document_id": id,
			"message":     "Document not found. Use the ingest_document tool to add it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get document status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	doc := status.Document
	document := map[string]interface{}{
		"id":             doc.ID,
		"filename":       doc.OriginalName,
		"document_type":  doc.DocumentType,
		"product_family": doc.ProductFamily,
		"product_model":  doc.ProductModel,
		"page_count":     doc.PageCount,
		"status":         doc.Status,
		"created_at":     doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if doc.ErrorMessage != "" {
		document["error_message"] = doc.ErrorMessage
	}
	if !doc.ProcessedAt.IsZero() {
		document["processed_at"] = doc.ProcessedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	response := map[string]interface{}{
		"indexed":     doc.Status == types.StatusCompleted,
		"document":    document,
		"chunk_count": status.ChunkCount,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// requireIndexed fails with ErrorCodeNotIndexed when there is nothing to search
func (s *Server) requireIndexed(ctx context.Context) error {
	count, err := s.storage.CountChunks(ctx, "")
	if err != nil {
		return newMCPError(ErrorCodeInternalError, "failed to check index", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if count == 0 {
		return newMCPError(ErrorCodeNotIndexed, "no documents indexed", map[string]interface{}{
			"hint": "use ingest_document first",
		})
	}
	return nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path names a readable PDF file
func validatePath(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}

	if info.IsDir() {
		return nil, ErrIsDirectory
	}

	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, ErrNotPDF
	}

	return info, nil
}

// parseFilters reads the optional filters object
func parseFilters(args map[string]interface{}) *rag.DocumentFilter {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok {
		return nil
	}
	f := &rag.DocumentFilter{
		DocumentIDs:     getStringSlice(raw, "document_ids"),
		DocumentTypes:   getStringSlice(raw, "document_types"),
		ProductFamilies: getStringSlice(raw, "product_families"),
		ProductModels:   getStringSlice(raw, "product_models"),
		ChunkTypes:      getStringSlice(raw, "chunk_types"),
	}
	if len(f.DocumentIDs)+len(f.DocumentTypes)+len(f.ProductFamilies)+len(f.ProductModels)+len(f.ChunkTypes) == 0 {
		return nil
	}
	return f
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a list of non-empty strings. A bare string is a one-element list.
func getStringSlice(args map[string]interface{}, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case string:
		if v != "" {
			out = append(out, v)
		}
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Path validation errors
var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory, not a file")
	ErrNotPDF          = errors.New("file is not a PDF")
)
