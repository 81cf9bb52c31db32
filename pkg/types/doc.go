// Package types provides shared type definitions for the datasheet RAG service.
//
// This package defines domain types used across multiple components,
// including pages, sections, chunks, document enums and search results.
//
// # Core Types
//
// ExtractResult is produced by the PDF extractor and holds the normalized
// text of every page together with detected tables and section headings:
//
//	result := &types.ExtractResult{
//	    Pages:     []types.Page{{Number: 1, Text: "DDR5 RDIMM ..."}},
//	    PageCount: 12,
//	}
//
// Chunk is the unit of retrieval. Each chunk knows the page it came from,
// the section heading in effect at that point and its position within the
// document:
//
//	chunk := &types.Chunk{
//	    DocumentID: "0b7c...",
//	    Content:    "Operating voltage VDD = 1.1 V",
//	    PageNumber: 3,
//	    Section:    "3.1 Electrical Characteristics",
//	    ChunkType:  types.ChunkText,
//	}
//
// # Enumerations
//
// UserRole, DocumentType and ProcessingStatus mirror the values accepted
// by the HTTP API. Parse helpers apply the same defaults the API applies
// (engineer, datasheet).
//
// # Search Results
//
// SearchResult carries the fused relevance score along with the per-leg
// vector and keyword scores. All scores are normalized to [0, 1], with higher
// values indicating better matches.
package types
