package storage

import (
	"context"
	"time"

	"github.com/dshills/datasheet-rag/pkg/types"
)

// Storage defines the interface for persisting and querying indexed datasheets
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentByHash(ctx context.Context, fileHash string) (*Document, error)
	ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, int, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	UpdateDocumentStatus(ctx context.Context, id string, status types.ProcessingStatus, errMsg string) error
	DeleteDocument(ctx context.Context, id string) error
	CountDocumentsByType(ctx context.Context) (map[string]int, error)

	// Section operations
	ReplaceSections(ctx context.Context, documentID string, sections []*Section) error
	ListSections(ctx context.Context, documentID string) ([]*Section, error)

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	GetChunkDetails(ctx context.Context, chunkIDs []int64) (map[int64]*ChunkDetail, error)
	ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) (int, error)
	CountChunks(ctx context.Context, documentID string) (int, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)
	ListEmbeddings(ctx context.Context, fn func(chunkID int64, vector []float32) error) error

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error)
	FilterChunks(ctx context.Context, chunkIDs []int64, filters *SearchFilters) (map[int64]bool, error)

	// Query log operations
	LogQuery(ctx context.Context, log *QueryLog) error
	SetQueryRating(ctx context.Context, id string, rating int) error
	PopularQueries(ctx context.Context, limit int) ([]PopularQuery, error)
	ConfidentQueries(ctx context.Context, minConfidence float64, limit int) ([]*QueryLog, error)
	QueryStats(ctx context.Context) (*QueryStats, error)

	// Status operations
	GetStatus(ctx context.Context) (*IndexStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Document represents an uploaded PDF and its processing state
type Document struct {
	ID            string
	Filename      string // Stored name, "<md5>_<original>"
	OriginalName  string
	FilePath      string
	FileHash      string // MD5 hex of the uploaded bytes
	FileSize      int64
	DocumentType  types.DocumentType
	ProductFamily string
	ProductModel  string
	Version       string
	Language      string
	PageCount     int
	Status        types.ProcessingStatus
	ErrorMessage  string
	HasTOC        bool
	ProcessedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Section represents a heading detected in a document
type Section struct {
	ID         int64
	DocumentID string
	Title      string
	PageNumber int
	Offset     int
	Position   int
}

// Chunk represents a stored span of document text
type Chunk struct {
	ID          int64
	DocumentID  string
	Content     string
	ContentHash [32]byte
	TokenCount  int
	PageNumber  int
	Section     string
	ChunkIndex  int
	ChunkType   string
	CreatedAt   time.Time
}

// ChunkDetail is a chunk joined with the metadata of its document
type ChunkDetail struct {
	Chunk
	Filename      string // Stored name, <md5>_<name>
	OriginalName  string
	DocumentType  string
	ProductFamily string
	ProductModel  string
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ID        int64
	ChunkID   int64
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// QueryLog records one answered question
type QueryLog struct {
	ID             string
	Question       string
	UserRole       string
	Answer         string
	Confidence     float64
	ResponseTimeMS int64
	SourcesCount   int
	ModelUsed      string
	Rating         *int // Nullable until feedback arrives
	CreatedAt      time.Time
}

// PopularQuery is a question with the number of times it was asked
type PopularQuery struct {
	Question string
	Count    int
}

// QueryStats summarizes the query log
type QueryStats struct {
	TotalQueries      int
	AvgResponseTimeMS float64
	AvgConfidence     float64
	AvgRating         float64
	RatedQueries      int
	RoleDistribution  map[string]int
}

// ListOptions controls document listing
type ListOptions struct {
	Page          int
	Limit         int
	DocumentType  string
	ProductFamily string
	Status        types.ProcessingStatus
	Search        string
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	DocumentIDs     []string
	DocumentTypes   []string
	ProductFamilies []string
	ProductModels   []string
	ChunkTypes      []string
	MinRelevance    float64
}

// IsEmpty reports whether the filters restrict anything besides relevance
func (f *SearchFilters) IsEmpty() bool {
	return f == nil || (len(f.DocumentIDs) == 0 && len(f.DocumentTypes) == 0 &&
		len(f.ProductFamilies) == 0 && len(f.ProductModels) == 0 && len(f.ChunkTypes) == 0)
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64
}

// TextResult represents a result from full-text search.
// BM25Score is the raw FTS5 value: negative, lower is better.
type TextResult struct {
	ChunkID   int64
	BM25Score float64
}

// IndexStatus contains statistics about the document index
type IndexStatus struct {
	DocumentsCount    int
	DocumentsByStatus map[string]int
	ChunksCount       int
	EmbeddingsCount   int
	QueriesCount      int
	IndexSizeMB       float64
	Health            HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// ToTypesChunk converts a storage Chunk to types.Chunk
func (c *Chunk) ToTypesChunk() types.Chunk {
	return types.Chunk{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		Content:     c.Content,
		ContentHash: c.ContentHash,
		TokenCount:  c.TokenCount,
		PageNumber:  c.PageNumber,
		Section:     c.Section,
		ChunkIndex:  c.ChunkIndex,
		ChunkType:   types.ChunkType(c.ChunkType),
	}
}

// FromTypesChunk converts types.Chunk to a storage Chunk
func FromTypesChunk(c types.Chunk) *Chunk {
	return &Chunk{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		Content:     c.Content,
		ContentHash: c.ContentHash,
		TokenCount:  c.TokenCount,
		PageNumber:  c.PageNumber,
		Section:     c.Section,
		ChunkIndex:  c.ChunkIndex,
		ChunkType:   string(c.ChunkType),
	}
}
