package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/storage"
)

// UploadResponse acknowledges an accepted upload
type UploadResponse struct {
	DocumentID string   `json:"document_id"`
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	FileInfo   FileInfo `json:"file_info"`
}

// FileInfo describes the stored upload
type FileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"`
}

// POST /upload
func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadSize+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, indexer.ErrFileTooLarge)
			return
		}
		s.writeError(c, badRequest("multipart field \"file\" is required"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	result, err := s.indexer.Upload(c.Request.Context(), indexer.UploadRequest{
		Filename: fh.Filename,
		Reader:   f,
		Size:     fh.Size,
		Meta:     indexer.MetadataFromForm(c.PostForm),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, UploadResponse{
		DocumentID: result.DocumentID,
		Status:     string(result.Status),
		Message:    "파일이 업로드되었습니다. 백그라운드에서 처리 중입니다.",
		FileInfo: FileInfo{
			Filename: fh.Filename,
			Size:     result.FileSize,
			Hash:     result.FileHash,
		},
	})
}

// UploadStatusResponse reports a document's processing progress
type UploadStatusResponse struct {
	DocumentResponse
	ChunkCount int `json:"chunk_count"`
}

// GET /upload/status/:id
func (s *Server) uploadStatus(c *gin.Context) {
	st, err := s.indexer.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, UploadStatusResponse{
		DocumentResponse: toDocumentResponse(st.Document),
		ChunkCount:       st.ChunkCount,
	})
}

// DELETE /upload/:id
func (s *Server) deleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := s.indexer.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": id,
		"deleted":     true,
		"message":     "문서가 삭제되었습니다.",
	})
}

// DocumentListResponse is one page of documents
type DocumentListResponse struct {
	Documents  []DocumentResponse `json:"documents"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

// GET /documents
func (s *Server) listDocuments(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 20)
	if err != nil {
		s.writeError(c, err)
		return
	}
	page = max(page, 1)
	limit = min(max(limit, 1), 100)

	docs, total, err := s.storage.ListDocuments(c.Request.Context(), storage.ListOptions{
		Page:          page,
		Limit:         limit,
		DocumentType:  c.Query("document_type"),
		ProductFamily: c.Query("product_family"),
		Search:        strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := DocumentListResponse{
		Documents:  make([]DocumentResponse, len(docs)),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
	for i, d := range docs {
		resp.Documents[i] = toDocumentResponse(d)
	}
	c.JSON(http.StatusOK, resp)
}

// DocumentDetailResponse is a document with its sections
type DocumentDetailResponse struct {
	DocumentResponse
	ChunkCount int               `json:"chunk_count"`
	Sections   []SectionResponse `json:"sections"`
}

// GET /documents/:id
func (s *Server) getDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	doc, err := s.storage.GetDocument(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	sections, err := s.storage.ListSections(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	count, err := s.storage.CountChunks(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := DocumentDetailResponse{
		DocumentResponse: toDocumentResponse(doc),
		ChunkCount:       count,
		Sections:         make([]SectionResponse, len(sections)),
	}
	for i, sec := range sections {
		resp.Sections[i] = SectionResponse{Title: sec.Title, PageNumber: sec.PageNumber, Position: sec.Position}
	}
	c.JSON(http.StatusOK, resp)
}

// ReindexRequest selects documents to reprocess
type ReindexRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Force       bool     `json:"force"`
}

// POST /reindex
func (s *Server) reindex(c *gin.Context) {
	var req ReindexRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, badRequest("invalid request body: "+err.Error()))
			return
		}
	}

	result, err := s.indexer.Reindex(c.Request.Context(), req.DocumentIDs, req.Force)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed":   result.Processed,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
		"errors":      result.Errors,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// intQuery parses an integer query parameter, returning def when absent
func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("query parameter " + key + " must be an integer")
	}
	return v, nil
}
