package api

import (
	"time"

	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// DocumentResponse is a document as returned by the API
type DocumentResponse struct {
	ID            string     `json:"id"`
	Filename      string     `json:"filename"`
	OriginalName  string     `json:"original_name"`
	FileSize      int64      `json:"file_size"`
	FileHash      string     `json:"file_hash"`
	DocumentType  string     `json:"document_type"`
	ProductFamily string     `json:"product_family,omitempty"`
	ProductModel  string     `json:"product_model,omitempty"`
	Version       string     `json:"version,omitempty"`
	Language      string     `json:"language,omitempty"`
	PageCount     int        `json:"page_count"`
	Status        string     `json:"processing_status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	HasTOC        bool       `json:"has_toc"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toDocumentResponse(d *storage.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:            d.ID,
		Filename:      d.Filename,
		OriginalName:  d.OriginalName,
		FileSize:      d.FileSize,
		FileHash:      d.FileHash,
		DocumentType:  string(d.DocumentType),
		ProductFamily: d.ProductFamily,
		ProductModel:  d.ProductModel,
		Version:       d.Version,
		Language:      d.Language,
		PageCount:     d.PageCount,
		Status:        string(d.Status),
		ErrorMessage:  d.ErrorMessage,
		HasTOC:        d.HasTOC,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if !d.ProcessedAt.IsZero() {
		processed := d.ProcessedAt
		resp.ProcessedAt = &processed
	}
	return resp
}

// SectionResponse is one detected heading
type SectionResponse struct {
	Title      string `json:"title"`
	PageNumber int    `json:"page_number"`
	Position   int    `json:"position"`
}

// SearchResultResponse is one ranked chunk
type SearchResultResponse struct {
	ChunkID        int64             `json:"chunk_id"`
	Rank           int               `json:"rank"`
	RelevanceScore float64           `json:"relevance_score"`
	VectorScore    float64           `json:"vector_score"`
	KeywordScore   float64           `json:"keyword_score"`
	Content        string            `json:"content"`
	PageNumber     int               `json:"page_number,omitempty"`
	Section        string            `json:"section,omitempty"`
	ChunkType      string            `json:"chunk_type"`
	Document       *DocumentRefBrief `json:"document,omitempty"`
}

// DocumentRefBrief identifies the document a result came from
type DocumentRefBrief struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	OriginalName  string `json:"original_name,omitempty"`
	DocumentType  string `json:"document_type"`
	ProductFamily string `json:"product_family,omitempty"`
	ProductModel  string `json:"product_model,omitempty"`
}

func toSearchResults(results []types.SearchResult) []SearchResultResponse {
	out := make([]SearchResultResponse, len(results))
	for i, r := range results {
		out[i] = SearchResultResponse{
			ChunkID:        r.ChunkID,
			Rank:           r.Rank,
			RelevanceScore: r.RelevanceScore,
			VectorScore:    r.VectorScore,
			KeywordScore:   r.KeywordScore,
			Content:        r.Content,
			PageNumber:     r.PageNumber,
			Section:        r.Section,
			ChunkType:      string(r.ChunkType),
		}
		if r.Document != nil {
			out[i].Document = &DocumentRefBrief{
				ID:            r.Document.ID,
				Filename:      r.Document.Filename,
				OriginalName:  r.Document.OriginalName,
				DocumentType:  string(r.Document.DocumentType),
				ProductFamily: r.Document.ProductFamily,
				ProductModel:  r.Document.ProductModel,
			}
		}
	}
	return out
}

// PopularQueryResponse is a question with its ask count
type PopularQueryResponse struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}
