package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	ChunkID int64
	Rank    int // Position in result set (1-based)

	// Scoring
	RelevanceScore float64 // Fused score in [0, 1]
	VectorScore    float64 // Cosine similarity clamped to [0, 1], zero when absent from the vector leg
	KeywordScore   float64 // BM25 normalized against the best keyword hit, zero when absent

	// Metadata
	Document   *DocumentRef
	Content    string
	PageNumber int
	Section    string
	ChunkType  ChunkType
}

// DocumentRef identifies the document a result was drawn from
type DocumentRef struct {
	ID            string
	Filename      string // Stored name, <md5>_<name>
	OriginalName  string
	DocumentType  DocumentType
	ProductFamily string
	ProductModel  string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == 0 {
		return ErrInvalidChunkID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore < 0 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Document == nil {
		return ErrMissingDocument
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
