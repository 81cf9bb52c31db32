package types

import (
	"crypto/sha256"
	"errors"
	"unicode/utf8"
)

// ChunkType represents the kind of datasheet content held by a chunk
type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkTable ChunkType = "table"
)

// Chunk represents a bounded span of document text stored as the unit of retrieval
type Chunk struct {
	// Identification
	ID         int64
	DocumentID string

	// Content
	Content     string
	ContentHash [32]byte // SHA-256 hash for deduplication
	TokenCount  int

	// Location
	PageNumber int // 1-based source page
	Section    string
	ChunkIndex int // 0-based, monotonic across the document

	// Metadata
	ChunkType ChunkType
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.PageNumber <= 0 {
		return errors.New("page number must be positive")
	}

	if c.ChunkIndex < 0 {
		return errors.New("chunk index must not be negative")
	}

	return nil
}

// ComputeTokenCount estimates the number of tokens in the chunk
// Uses a simple heuristic: characters / 4
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = utf8.RuneCountInString(c.Content) / 4
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// ValidateChunkType checks if the chunk type is valid
func (c *Chunk) ValidateChunkType() error {
	switch c.ChunkType {
	case ChunkText, ChunkTable:
		return nil
	default:
		return errors.New("invalid chunk type")
	}
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if err := c.ValidateChunkType(); err != nil {
		return err
	}

	if c.DocumentID == "" {
		return errors.New("document ID is required")
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}

	return nil
}
